package notify

import (
	"fmt"
	"html"
)

// Marker substrings. Operators filter chats on these, keep them stable.
const (
	MarkerJoined         = "Berhasil Bergabung"
	MarkerHostNotStarted = "Host Belum Memulai"
	MarkerUnconfirmed    = "Gagal Konfirmasi Bergabung"
	MarkerJoinError      = "Gagal Operasi"
	MarkerStillPresent   = "Masih Berada di Meeting"
	MarkerLeftMeeting    = "Keluar Meeting"
	MarkerPageMissing    = "Peringatan"
	MarkerCheckError     = "Kesalahan Pengecekan"
	MarkerRejoining      = "Bergabung Kembali"
	MarkerStartupFailed  = "Gagal Memulai Otomatisasi"
	MarkerClaimStarted   = "Auto Klaim Quest Dimulai"
	MarkerClaimAuthFail  = "Otentikasi Klaim Gagal"
	MarkerMaxHP          = "Max HP"
	MarkerQuestClaimed   = "Quest Diklaim"
	MarkerQuestFailed    = "Klaim Quest Gagal"
)

func code(s string) string {
	return "<code>" + html.EscapeString(s) + "</code>"
}

// HostNotStarted reports that the room owner has not opened roomID yet.
func HostNotStarted(roomID string) string {
	return fmt.Sprintf("<b>⚠️ %s</b>\nHost belum memulai meeting untuk Room ID: %s. Mencoba room ID berikutnya.",
		MarkerHostNotStarted, code(roomID))
}

// Joined reports a confirmed join.
func Joined(roomID string) string {
	return fmt.Sprintf("<b>✅ %s</b>\nBerhasil bergabung ke meeting dengan Room ID: %s.", MarkerJoined, code(roomID))
}

// JoinUnconfirmed reports that neither indicator appeared.
func JoinUnconfirmed(roomID string) string {
	return fmt.Sprintf("<b>❌ %s</b>\nGagal mengonfirmasi bergabung ke meeting dengan Room ID: %s. Mencoba room ID berikutnya.",
		MarkerUnconfirmed, code(roomID))
}

// JoinError reports an error raised while attempting roomID.
func JoinError(roomID string, err error) string {
	return fmt.Sprintf("<b>❌ %s</b>\nTerjadi kesalahan saat mencoba bergabung atau memeriksa status untuk Room ID %s: %s",
		MarkerJoinError, code(roomID), html.EscapeString(errString(err)))
}

// StillPresent is sent on every successful presence check.
func StillPresent() string {
	return fmt.Sprintf("<b>✅ %s</b>", MarkerStillPresent)
}

// LeftMeeting reports that the in-meeting indicator disappeared.
func LeftMeeting() string {
	return fmt.Sprintf("<b>⚠️ %s</b>\nTerdeteksi keluar dari meeting. Mencoba bergabung kembali.", MarkerLeftMeeting)
}

// PageMissing reports that the browser page is gone.
func PageMissing() string {
	return fmt.Sprintf("<b>⚠️ %s</b>\nHalaman browser tidak tersedia. Mencoba bergabung kembali.", MarkerPageMissing)
}

// CheckError reports a failed presence probe.
func CheckError(err error) string {
	return fmt.Sprintf("<b>❌ %s</b>\nTerjadi kesalahan saat memeriksa status meeting: %s. Mencoba bergabung kembali.",
		MarkerCheckError, html.EscapeString(errString(err)))
}

// Rejoining is sent when the join loop restarts after presence loss.
func Rejoining() string {
	return fmt.Sprintf("<b>🔄 %s</b>\nMencoba bergabung kembali ke meeting...", MarkerRejoining)
}

// StartupFailed reports a fatal startup error.
func StartupFailed(err error) string {
	return fmt.Sprintf("<b>❌ %s</b>\nTerjadi kesalahan saat memulai: %s", MarkerStartupFailed, html.EscapeString(errString(err)))
}

// ClaimStarted is sent when a due claim cycle begins.
func ClaimStarted() string {
	return fmt.Sprintf("<b>🚀 %s</b>\nKlaim quest Web3 dijalankan otomatis.", MarkerClaimStarted)
}

// ClaimAuthFailed reports a failed authentication handshake.
func ClaimAuthFailed() string {
	return fmt.Sprintf("<b>❌ %s</b>\nOtentikasi Web3 gagal sebelum klaim quest.", MarkerClaimAuthFail)
}

// MaxHPReached reports that claiming is paused until the next day.
func MaxHPReached() string {
	return fmt.Sprintf("<b>⚠️ %s Tercapai</b>\nKlaim quest akan dilanjutkan besok hari.", MarkerMaxHP)
}

// QuestClaimed reports a successful claim.
func QuestClaimed(message, points string) string {
	if points == "" {
		return fmt.Sprintf("<b>✅ %s!</b>\n%q", MarkerQuestClaimed, html.EscapeString(message))
	}
	return fmt.Sprintf("<b>✅ %s!</b>\n%q Poin: %s.", MarkerQuestClaimed, html.EscapeString(message), code(points))
}

// QuestFailed reports a failed claim with the remote detail.
func QuestFailed(detail string) string {
	if detail == "" {
		detail = "Error tidak diketahui"
	}
	return fmt.Sprintf("<b>❌ %s</b>\n%s", MarkerQuestFailed, html.EscapeString(detail))
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Cookie is a browser cookie in the shape exported by browser extensions
// and accepted by the page automation drivers.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// LoadCookies reads a JSON cookie array. A missing file yields no cookies and
// no error so the process can still run without an authenticated browser.
func LoadCookies(path string) ([]Cookie, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to decode cookie file %s: %w", path, err)
	}

	// Extension exports use "unspecified"/"no_restriction"; drivers only accept Strict/Lax/None
	for i := range cookies {
		cookies[i].SameSite = normalizeSameSite(cookies[i].SameSite)
	}

	return cookies, nil
}

func normalizeSameSite(v string) string {
	switch v {
	case "strict", "Strict":
		return "Strict"
	case "lax", "Lax":
		return "Lax"
	case "none", "None", "no_restriction":
		return "None"
	default:
		return ""
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomkeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
meeting:
  room_ids: [file-room]
browser:
  engine: rod
  headless: true
logging:
  verbosity: verbose
`), 0o600))

	tests := []struct {
		name          string
		path          string
		env           map[string]string
		overrides     Overrides
		expectError   bool
		expectedRooms []string
		expectedEng   string
		expectedHead  bool
		expectedLevel string
	}{
		{
			name:          "file over defaults",
			path:          path,
			expectedRooms: []string{"file-room"},
			expectedEng:   EngineRod,
			expectedHead:  true,
			expectedLevel: "verbose",
		},
		{
			name:          "env over file",
			path:          path,
			env:           map[string]string{"ROOM_IDS": "env-a,env-b"},
			expectedRooms: []string{"env-a", "env-b"},
			expectedEng:   EngineRod,
			expectedHead:  true,
			expectedLevel: "verbose",
		},
		{
			name: "flags over everything",
			path: path,
			env:  map[string]string{"ROOM_IDS": "env-a"},
			overrides: Overrides{
				Engine:    strPtr(EnginePlaywright),
				Headless:  boolPtr(false),
				Verbosity: strPtr("debug"),
			},
			expectedRooms: []string{"env-a"},
			expectedEng:   EnginePlaywright,
			expectedHead:  false,
			expectedLevel: "debug",
		},
		{
			name:          "empty flag values are ignored",
			path:          path,
			overrides:     Overrides{Engine: strPtr(""), Verbosity: strPtr("")},
			expectedRooms: []string{"file-room"},
			expectedEng:   EngineRod,
			expectedHead:  true,
			expectedLevel: "verbose",
		},
		{
			name:        "defaults alone have no rooms",
			expectError: true,
		},
		{
			name:        "invalid flag engine fails validation",
			path:        path,
			overrides:   Overrides{Engine: strPtr("chrome")},
			expectError: true,
		},
		{
			name:        "missing file",
			path:        filepath.Join(t.TempDir(), "nope.yaml"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }

			cfg, err := Resolve(tt.path, getenv, tt.overrides)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedRooms, cfg.Meeting.RoomIDs)
			assert.Equal(t, tt.expectedEng, cfg.Browser.Engine)
			assert.Equal(t, tt.expectedHead, cfg.Browser.Headless)
			assert.Equal(t, tt.expectedLevel, cfg.Logging.Verbosity)
		})
	}
}

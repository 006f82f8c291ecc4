package tts

import "github.com/thunder45/service-translate/internal/session"

// VoiceTable resolves a voice name from (language, mode), a fixed table
// per §4.7 step 4, populated from configuration.
type VoiceTable map[string]map[session.TTSMode]string

// Voice looks up the configured voice, falling back to the bare language
// code when no table entry exists.
func (vt VoiceTable) Voice(language string, mode session.TTSMode) string {
	if byMode, ok := vt[language]; ok {
		if v, ok := byMode[mode]; ok && v != "" {
			return v
		}
	}
	return language
}

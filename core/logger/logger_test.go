package logger

import "testing"

func TestSanitizeKVs(t *testing.T) {
	got := sanitizeKVs([]interface{}{
		"task_token", "AAAA.bbbb.cccc",
		"job_type", "training",
		"params", map[string]interface{}{"TaskToken": "x", "username": "kim"},
		"empty_token", "",
		"dangling",
	})

	if got[1] != "[REDACTED]" {
		t.Errorf("task_token not redacted: %v", got[1])
	}
	if got[3] != "training" {
		t.Errorf("job_type altered: %v", got[3])
	}
	params := got[5].(map[string]interface{})
	if params["TaskToken"] != "[REDACTED]" || params["username"] != "kim" {
		t.Errorf("nested map not sanitized correctly: %v", params)
	}
	if got[7] != "" {
		t.Errorf("empty token should stay empty, got %v", got[7])
	}
	if got[len(got)-1] != "dangling" {
		t.Errorf("dangling key dropped: %v", got)
	}
}

package storage

import (
	"testing"
)

func TestGetString(t *testing.T) {
	cfg := map[string]string{"path": "/tmp/x", "empty": ""}
	if got := GetString(cfg, "path", "d"); got != "/tmp/x" {
		t.Errorf("GetString = %q", got)
	}
	if got := GetString(cfg, "empty", "d"); got != "d" {
		t.Errorf("GetString empty = %q, want default", got)
	}
	if got := GetString(cfg, "missing", "d"); got != "d" {
		t.Errorf("GetString missing = %q, want default", got)
	}
}

func TestGetBool(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "YES": true, "false": false, "0": false, "no": false}
	for in, want := range cases {
		got, err := GetBool(map[string]string{"k": in}, "k", false)
		if err != nil || got != want {
			t.Errorf("GetBool(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	if _, err := GetBool(map[string]string{"k": "maybe"}, "k", false); err == nil {
		t.Error("GetBool accepted invalid value")
	}

	got, err := GetBool(nil, "k", true)
	if err != nil || !got {
		t.Errorf("GetBool default = %v, %v", got, err)
	}
}

func TestGetInt64(t *testing.T) {
	got, err := GetInt64(map[string]string{"n": "1073741824"}, "n", 0)
	if err != nil || got != 1<<30 {
		t.Errorf("GetInt64 = %d, %v", got, err)
	}
	if _, err := GetInt64(map[string]string{"n": "abc"}, "n", 0); err == nil {
		t.Error("GetInt64 accepted non-integer")
	}
}

func TestMergeConfig(t *testing.T) {
	merged := MergeConfig(map[string]string{"a": "1", "b": "2"}, map[string]string{"b": "3"})
	if merged["a"] != "1" || merged["b"] != "3" {
		t.Errorf("MergeConfig = %v", merged)
	}
}

func TestConfigError(t *testing.T) {
	err := NewConfigErrorWithValue("badger", "sync_writes", "maybe", "must be a boolean")
	want := `badger: sync_writes="maybe": must be a boolean`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

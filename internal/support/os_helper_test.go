package support

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("FWBLOCK_TEST_ENV", "value")
	if got := GetEnv("FWBLOCK_TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("GetEnv returned %s, want value", got)
	}

	if got := GetEnv("FWBLOCK_TEST_ENV_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("GetEnv returned %s, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("FWBLOCK_TEST_INT", "42")
	t.Setenv("FWBLOCK_TEST_BAD_INT", "forty")

	if got := GetEnvInt("FWBLOCK_TEST_INT", 1); got != 42 {
		t.Fatalf("GetEnvInt returned %d, want 42", got)
	}
	if got := GetEnvInt("FWBLOCK_TEST_BAD_INT", 1); got != 1 {
		t.Fatalf("GetEnvInt returned %d, want fallback 1", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FWBLOCK_TEST_BOOL", "Yes")
	t.Setenv("FWBLOCK_TEST_BAD_BOOL", "maybe")

	if !GetEnvBool("FWBLOCK_TEST_BOOL", false) {
		t.Fatal("GetEnvBool returned false, want true")
	}
	if !GetEnvBool("FWBLOCK_TEST_BAD_BOOL", true) {
		t.Fatal("GetEnvBool returned false, want fallback true")
	}
}

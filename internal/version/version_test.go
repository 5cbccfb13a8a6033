package version

import "testing"

func TestCompatibleSameVersion(t *testing.T) {
	if !Compatible(Format) {
		t.Fatalf("a module stamped with the running Format (%s) must be compatible with itself", Format)
	}
}

func TestCompatibleLiteralV1_0_0(t *testing.T) {
	if !Compatible("v1.0.0") {
		t.Fatal("v1.0.0 should be compatible with itself")
	}
}

func TestIncompatibleDifferentMajor(t *testing.T) {
	if Compatible("v2.0.0") {
		t.Fatal("a different major version must never be compatible")
	}
}

func TestIncompatibleNewerMinor(t *testing.T) {
	if Compatible("v1.99.0") {
		t.Fatal("a producer newer than the running reader must not be treated as compatible")
	}
}

func TestIncompatibleInvalidSemver(t *testing.T) {
	if Compatible("not-a-version") {
		t.Fatal("an invalid semver string must never be reported compatible")
	}
	if Compatible("") {
		t.Fatal("an empty format string must never be reported compatible")
	}
}

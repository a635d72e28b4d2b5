package registry

import "testing"

func TestContentHash_StableForSameInput(t *testing.T) {
	t.Parallel()
	if ContentHash("hello") != ContentHash("hello") {
		t.Error("expected identical input to hash identically")
	}
	if ContentHash("hello") == ContentHash("world") {
		t.Error("expected different input to hash differently")
	}
}

func TestDecide_NoExistingRecordCreates(t *testing.T) {
	t.Parallel()
	d := decide(Record{}, false, "h1", PolicySkipIfUnchanged)
	if d.Action != "create" || d.Version != 1 {
		t.Errorf("expected create/v1, got %+v", d)
	}
}

func TestDecide_SkipIfUnchangedMatchesHash(t *testing.T) {
	t.Parallel()
	existing := Record{Hash: "h1", Version: 3}
	d := decide(existing, true, "h1", PolicySkipIfUnchanged)
	if d.Action != "skip" || d.Version != 3 {
		t.Errorf("expected skip/v3, got %+v", d)
	}
}

func TestDecide_SkipIfUnchangedOverwritesOnHashChange(t *testing.T) {
	t.Parallel()
	existing := Record{Hash: "h1", Version: 3}
	d := decide(existing, true, "h2", PolicySkipIfUnchanged)
	if d.Action != "overwrite" || d.Version != 3 {
		t.Errorf("expected overwrite/v3, got %+v", d)
	}
}

func TestDecide_NewVersionBumpsVersion(t *testing.T) {
	t.Parallel()
	existing := Record{Hash: "h1", Version: 3}
	d := decide(existing, true, "h2", PolicyNewVersion)
	if d.Action != "new_version" || d.Version != 4 {
		t.Errorf("expected new_version/v4, got %+v", d)
	}
}

func TestDecide_OverwritePolicyAlwaysOverwrites(t *testing.T) {
	t.Parallel()
	existing := Record{Hash: "h1", Version: 5}
	d := decide(existing, true, "h1", PolicyOverwrite)
	if d.Action != "overwrite" || d.Version != 5 {
		t.Errorf("expected overwrite/v5, got %+v", d)
	}
}

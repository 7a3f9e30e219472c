package importer

import (
	"strings"
	"testing"
)

func TestImportParsesPositionAndExtraFields(t *testing.T) {
	data := "# comment line\n" +
		"x y z density\n" +
		"1.0 2.0 3.0 0.5\n" +
		"4.0 5.0 6.0 1.5\n"
	recs, err := Import(strings.NewReader(data), []string{"density"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Position.X != 1 || recs[0].Position.Y != 2 || recs[0].Position.Z != 3 {
		t.Errorf("record 0 position = %+v, want (1,2,3)", recs[0].Position)
	}
	if v, ok := recs[1].Value("density"); !ok || v != 1.5 {
		t.Errorf("record 1 density = %v, %v, want 1.5, true", v, ok)
	}
}

func TestImportRejectsMissingMandatoryColumn(t *testing.T) {
	data := "x y density\n1.0 2.0 0.5\n"
	if _, err := Import(strings.NewReader(data), []string{"density"}); err == nil {
		t.Error("expected error for missing mandatory column z")
	}
}

func TestImportRejectsNonNumericMandatoryColumn(t *testing.T) {
	data := "x y z\n1.0 2.0 abc\n"
	if _, err := Import(strings.NewReader(data), nil); err == nil {
		t.Error("expected error for non-numeric z value")
	}
}

func TestImportSkipsExtraFieldNotPresentOnRow(t *testing.T) {
	data := "x y z\n1.0 2.0 3.0\n"
	recs, err := Import(strings.NewReader(data), []string{"density"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := recs[0].Value("density"); ok {
		t.Error("expected density field to be absent, not zero-valued")
	}
}

func TestFilterKeepsOnlyMatching(t *testing.T) {
	recs := []Record{
		{Fields: map[string]float64{"density": 1}},
		{Fields: map[string]float64{"density": -1}},
		{Fields: map[string]float64{"density": 2}},
	}
	kept := Filter(recs, func(r Record) bool {
		v, _ := r.Value("density")
		return v > 0
	})
	if len(kept) != 2 {
		t.Fatalf("expected 2 kept records, got %d", len(kept))
	}
	for _, r := range kept {
		if v, _ := r.Value("density"); v <= 0 {
			t.Errorf("filter retained a record with density = %v", v)
		}
	}
}

package presence

import "testing"

func TestClassifyTotal(t *testing.T) {
	statuses := []Status{Online, Offline, Invisible, Idle, DoNotDisturb, Status("streaming"), Status("")}
	want := map[Status]Class{
		Online:    CameOnline,
		Offline:   WentOffline,
		Invisible: WentOffline,
	}
	for _, st := range statuses {
		for _, automated := range []bool{true, false} {
			got := Classify(st, automated)
			exp := Irrelevant
			if automated {
				exp = want[st] // zero value is Irrelevant
			}
			if got != exp {
				t.Fatalf("Classify(%q, %v)=%v want %v", st, automated, got, exp)
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"online":    Online,
		" Offline ": Offline,
		"INVISIBLE": Invisible,
		"dnd":       DoNotDisturb,
		"idle":      Idle,
		"unknown":   Status("unknown"),
	}
	for in, want := range cases {
		if got := ParseStatus(in); got != want {
			t.Fatalf("ParseStatus(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSignalClassify(t *testing.T) {
	tr := Signal{SubjectID: "bot_42", Status: Offline, Automated: true}.Classify()
	if tr.SubjectID != "bot_42" || tr.Class != WentOffline || tr.ClassName != "went_offline" {
		t.Fatalf("unexpected transition %+v", tr)
	}
}

func TestClassString(t *testing.T) {
	if Irrelevant.String() != "irrelevant" || CameOnline.String() != "came_online" || Class(99).String() != "irrelevant" {
		t.Fatalf("unexpected class names")
	}
}

package dispatch

import "testing"

func TestClassifyTier(t *testing.T) {
	tests := []struct {
		in   string
		tier Tier
		op   DataOp
		arg  string
	}{
		{"/start", TierStatic, "", ""},
		{"  START ", TierStatic, "", ""},
		{"help", TierStatic, "", ""},
		{"/HELP", TierStatic, "", ""},
		{"/tasks", TierData, OpActiveTasks, ""},
		{"/Todo", TierData, OpTodo, ""},
		{"/doing", TierData, OpDoing, ""},
		{"/done", TierData, OpDone, ""},
		{"/task", TierData, OpTaskDetail, ""},
		{"/task 1000001", TierData, OpTaskDetail, "1000001"},
		{"/TASK   #1000001  ", TierData, OpTaskDetail, "#1000001"},
		{"/task abc", TierData, OpTaskDetail, "abc"},
		{"/taskss", TierIntent, "", ""},
		{"/tasks please", TierIntent, "", ""},
		{"tạo task review PR", TierIntent, "", ""},
		{"task 1000005 done rồi", TierIntent, "", ""},
		{"starting now", TierIntent, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cmd := ClassifyTier(tt.in)
			if cmd.Tier != tt.tier {
				t.Fatalf("tier = %v, want %v", cmd.Tier, tt.tier)
			}
			if cmd.Op != tt.op {
				t.Errorf("op = %q, want %q", cmd.Op, tt.op)
			}
			if cmd.Arg != tt.arg {
				t.Errorf("arg = %q, want %q", cmd.Arg, tt.arg)
			}
			if tt.tier == TierStatic && (cmd.Static == nil || !cmd.Static.HTML) {
				t.Errorf("static reply = %+v, want HTML reply", cmd.Static)
			}
		})
	}
}

func TestClassifyTier_StaticTexts(t *testing.T) {
	if got := ClassifyTier("/start").Static.Text; got != welcomeText {
		t.Errorf("/start reply mismatch: %q", got)
	}
	if got := ClassifyTier("help").Static.Text; got != helpText {
		t.Errorf("help reply mismatch: %q", got)
	}
}

func TestTierString(t *testing.T) {
	for tier, want := range map[Tier]string{TierStatic: "static", TierData: "data", TierIntent: "intent", 0: "unknown"} {
		if got := tier.String(); got != want {
			t.Errorf("Tier(%d).String() = %q, want %q", tier, got, want)
		}
	}
}

package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"autoprofile/internal/condition"
	"autoprofile/internal/param"
	"autoprofile/internal/schedule"
)

func TestSpecificity(t *testing.T) {
	rules := []condition.Condition{
		{Parameter: param.PowerSource, Operator: condition.Is, Value: "battery"},
		{Parameter: param.LidState, Operator: condition.Is, Value: "closed"},
	}
	tests := []struct {
		name string
		p    Profile
		want int
		auto bool
	}{
		{"empty", Profile{}, 0, false},
		{"rules only", Profile{Rules: rules}, 2, true},
		{"disabled schedule does not count", Profile{Rules: rules, Schedule: &schedule.Schedule{Enabled: false}}, 2, true},
		{"enabled schedule counts", Profile{Rules: rules, Schedule: &schedule.Schedule{Enabled: true}}, 3, true},
		{"schedule only", Profile{Schedule: &schedule.Schedule{Enabled: true}}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Specificity())
			assert.Equal(t, tt.auto, tt.p.AutoActivates())
		})
	}
}

func TestFind(t *testing.T) {
	ps := []Profile{{ID: "a"}, {ID: "b", Name: "B"}}
	p, ok := Find(ps, "b")
	assert.True(t, ok)
	assert.Equal(t, "B", p.Name)
	_, ok = Find(ps, "c")
	assert.False(t, ok)
}

func TestClone_Independent(t *testing.T) {
	orig := Profile{
		ID:       "p",
		Rules:    []condition.Condition{{Parameter: param.PowerSource, Operator: condition.Is, Value: "ac"}},
		Schedule: &schedule.Schedule{Enabled: true, Days: []int{1, 2}, Start: "09:00", End: "17:00"},
		Config:   map[string]any{"governor": "performance"},
	}
	c := orig.Clone()
	c.Rules[0].Value = "battery"
	c.Schedule.Days[0] = 7
	c.Config["governor"] = "powersave"

	assert.Equal(t, "ac", orig.Rules[0].Value)
	assert.Equal(t, []int{1, 2}, orig.Schedule.Days)
	assert.Equal(t, "performance", orig.Config["governor"])
}

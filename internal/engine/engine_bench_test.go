package engine

import (
	"fmt"
	"testing"
	"time"

	"autoprofile/internal/condition"
	"autoprofile/internal/param"
	"autoprofile/internal/profile"
	"autoprofile/internal/schedule"
)

func BenchmarkEvaluate(b *testing.B) {
	eng := NewEngine(nil)
	ps := make([]profile.Profile, 0, 64)
	for i := 0; i < 64; i++ {
		ps = append(ps, profile.Profile{
			ID: fmt.Sprintf("p%02d", i),
			Rules: []condition.Condition{
				{Parameter: param.BatteryLevel, Operator: condition.Below, Value: fmt.Sprint(i + 1)},
			},
			Schedule: &schedule.Schedule{Enabled: i%2 == 0, Days: []int{1, 2, 3}, Start: "08:00", End: "02:00"},
		})
	}
	req := Request{
		Snapshot: param.NewSnapshot(map[string]string{param.BatteryLevel: "10"}),
		Now:      time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC),
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = eng.Evaluate(ps, req)
	}
}

package functions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFood_ComponentsAndMacros(t *testing.T) {
	rec := parseFood("2 eggs and toast")

	require.Len(t, rec.Components, 2)
	assert.Equal(t, "2 eggs and toast", rec.Name)
	assert.Equal(t, "high", rec.Confidence)

	// 2 eggs (2x70) + toast (80).
	assert.Equal(t, 220, rec.Calories)
	assert.Equal(t, 15, rec.Protein)
	assert.Equal(t, 140, rec.Components[0].Calories)
	assert.Equal(t, "toast", rec.Components[1].Name)
}

func TestParseFood_PartiallyKnownIsMedium(t *testing.T) {
	rec := parseFood("chicken and mystery casserole")
	assert.Equal(t, "medium", rec.Confidence)
	require.Len(t, rec.Components, 2)
}

func TestParseFood_UnknownIsLowWithGenericEstimate(t *testing.T) {
	rec := parseFood("some snacks")
	assert.Equal(t, "low", rec.Confidence)
	assert.Equal(t, genericEstimate.calories, rec.Calories)
}

func TestParseFood_PhraseResolvesContainedFood(t *testing.T) {
	rec := parseFood("4 eggs scrambled")
	assert.Equal(t, "high", rec.Confidence)
	assert.Equal(t, 280, rec.Calories)
}

func TestLogNutrition_StoresRecord(t *testing.T) {
	s := NewStores()

	out, err := s.logNutrition(context.Background(), map[string]any{"description": "protein shake with banana"})
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "logged", m["status"])
	assert.Equal(t, "high", m["confidence"])

	records := s.NutritionSince(time.Now().Add(-time.Minute))
	require.Len(t, records, 1)
	assert.Equal(t, 265, records[0].Calories)
}

func TestLogNutrition_EmptyDescriptionRejected(t *testing.T) {
	s := NewStores()
	_, err := s.logNutrition(context.Background(), map[string]any{"description": "  "})
	assert.Error(t, err)
}

func TestAdjustGoal_UpsertsByName(t *testing.T) {
	s := NewStores()

	_, err := s.adjustGoal(context.Background(), map[string]any{"goal": "cut", "target": "82kg"})
	require.NoError(t, err)
	_, err = s.adjustGoal(context.Background(), map[string]any{"goal": "cut", "target": "80kg", "timeline": "12 weeks"})
	require.NoError(t, err)

	goals := s.Goals()
	require.Len(t, goals, 1)
	assert.Equal(t, "80kg", goals[0].Target)
	assert.Equal(t, "12 weeks", goals[0].Timeline)
}

func TestQueryWorkouts_ExerciseFilter(t *testing.T) {
	s := NewStores()
	s.AddWorkout(WorkoutEntry{Date: time.Now().AddDate(0, 0, -2), Title: "Push A", Exercises: []string{"Bench Press", "Dips"}})
	s.AddWorkout(WorkoutEntry{Date: time.Now().AddDate(0, 0, -1), Title: "Legs", Exercises: []string{"Squat"}})

	out, err := s.queryWorkouts(context.Background(), map[string]any{"exercise": "bench"})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, 1, m["count"])
}

func TestQueryWorkouts_DaysClampedAndEmptyMessage(t *testing.T) {
	s := NewStores()
	s.AddWorkout(WorkoutEntry{Date: time.Now().AddDate(0, 0, -200), Title: "Old"})

	// days is clamped to 90, so the 200-day-old workout is out of range.
	out, err := s.queryWorkouts(context.Background(), map[string]any{"days": float64(500)})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Contains(t, m, "message")
}

func TestQueryNutrition_AveragesAndCompliance(t *testing.T) {
	s := NewStores()
	s.TargetProtein = 100
	s.addNutrition(NutritionRecord{Date: time.Now().AddDate(0, 0, -1), Calories: 2000, Protein: 150})
	s.addNutrition(NutritionRecord{Date: time.Now(), Calories: 2200, Protein: 150})

	out, err := s.queryNutrition(context.Background(), map[string]any{"days": float64(7)})
	require.NoError(t, err)
	m := out.(map[string]any)

	assert.Equal(t, 2, m["tracked_days"])
	avg := m["averages"].(map[string]any)
	assert.Equal(t, 2100, avg["calories"])
	assert.Equal(t, "150%", m["protein_compliance"])
}

func TestQueryNutrition_ZeroValueStoresUsesDefaultTargets(t *testing.T) {
	s := &Stores{}
	s.addNutrition(NutritionRecord{Date: time.Now(), Calories: 2400, Protein: 175})

	out, err := s.queryNutrition(context.Background(), map[string]any{})
	require.NoError(t, err)
	m := out.(map[string]any)

	targets := m["targets"].(map[string]any)
	assert.Equal(t, 2400, targets["calories"])
	assert.Equal(t, 175, targets["protein"])
	assert.Equal(t, "100%", m["protein_compliance"])
}

func TestQueryNutrition_IncludeMeals(t *testing.T) {
	s := NewStores()
	s.addNutrition(NutritionRecord{Date: time.Now(), Name: "breakfast", Calories: 400, Protein: 30})

	out, err := s.queryNutrition(context.Background(), map[string]any{"include_meals": true})
	require.NoError(t, err)
	m := out.(map[string]any)
	require.Contains(t, m, "meals")
	assert.Len(t, m["meals"], 1)
}

func TestQueryRecovery_Averages(t *testing.T) {
	s := NewStores()
	s.AddRecovery(RecoveryEntry{Date: time.Now().AddDate(0, 0, -2), SleepHours: 7.5, RestingHR: 52})
	s.AddRecovery(RecoveryEntry{Date: time.Now().AddDate(0, 0, -1), SleepHours: 6.5, HRVMs: 80})

	out, err := s.queryRecovery(context.Background(), map[string]any{})
	require.NoError(t, err)
	m := out.(map[string]any)

	sleep := m["sleep"].(map[string]any)
	assert.Equal(t, 7.0, sleep["average"])
	assert.Equal(t, 2, sleep["nights_tracked"])
	assert.Contains(t, m, "hrv")
	assert.Contains(t, m, "resting_hr")
}

func TestNewRegistry_AllAndSubset(t *testing.T) {
	s := NewStores()

	reg, err := NewRegistry(s)
	require.NoError(t, err)
	assert.Equal(t, 5, reg.Len())

	reg, err = NewRegistry(s, "log_nutrition", "adjust_goal")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	_, err = NewRegistry(s, "teleport")
	assert.Error(t, err)
}

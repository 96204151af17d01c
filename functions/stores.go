package functions

import (
	"sort"
	"sync"
	"time"
)

// WorkoutEntry is one recorded training session.
type WorkoutEntry struct {
	Date        time.Time
	Title       string
	Exercises   []string
	MuscleGroup string
	Sets        int
}

// NutritionRecord is one logged meal with summed macros.
type NutritionRecord struct {
	Date        time.Time
	Name        string
	Calories    int
	Protein     int
	Carbs       int
	Fat         int
	Confidence  string
	Components  []Component
	Description string
}

// RecoveryEntry is one day of recovery signals. Zero values mean untracked.
type RecoveryEntry struct {
	Date       time.Time
	SleepHours float64
	HRVMs      float64
	RestingHR  float64
}

// Goal is one coaching goal on the client profile.
type Goal struct {
	Name     string
	Target   string
	Timeline string
	SetAt    time.Time
}

// Stores holds the in-memory domain state the built-in handlers operate on.
// All methods are safe for concurrent use.
type Stores struct {
	mu        sync.RWMutex
	workouts  []WorkoutEntry
	nutrition []NutritionRecord
	recovery  []RecoveryEntry
	goals     []Goal

	// Macro targets used for compliance reporting.
	TargetCalories int
	TargetProtein  int
}

// NewStores returns empty stores with default macro targets.
func NewStores() *Stores {
	return &Stores{TargetCalories: 2400, TargetProtein: 175}
}

// targets returns the macro targets, substituting the defaults when the
// struct was built as a zero value instead of through NewStores.
func (s *Stores) targets() (calories, protein int) {
	calories, protein = s.TargetCalories, s.TargetProtein
	if calories <= 0 {
		calories = 2400
	}
	if protein <= 0 {
		protein = 175
	}
	return calories, protein
}

// AddWorkout records a training session.
func (s *Stores) AddWorkout(w WorkoutEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workouts = append(s.workouts, w)
}

// AddRecovery records a day of recovery signals.
func (s *Stores) AddRecovery(r RecoveryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovery = append(s.recovery, r)
}

func (s *Stores) addNutrition(n NutritionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nutrition = append(s.nutrition, n)
}

func (s *Stores) setGoal(g Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.goals {
		if s.goals[i].Name == g.Name {
			s.goals[i] = g
			return
		}
	}
	s.goals = append(s.goals, g)
}

// Goals returns a copy of the current goals, newest first.
func (s *Stores) Goals() []Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Goal, len(s.goals))
	copy(out, s.goals)
	sort.Slice(out, func(i, j int) bool { return out[i].SetAt.After(out[j].SetAt) })
	return out
}

// NutritionSince returns records on or after cutoff.
func (s *Stores) NutritionSince(cutoff time.Time) []NutritionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []NutritionRecord
	for _, n := range s.nutrition {
		if !n.Date.Before(cutoff) {
			out = append(out, n)
		}
	}
	return out
}

func (s *Stores) workoutsSince(cutoff time.Time) []WorkoutEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []WorkoutEntry
	for _, w := range s.workouts {
		if !w.Date.Before(cutoff) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (s *Stores) recoverySince(cutoff time.Time) []RecoveryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RecoveryEntry
	for _, r := range s.recovery {
		if !r.Date.Before(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

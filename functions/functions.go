// Package functions provides the built-in coaching function handlers:
// meal logging, goal adjustment, and history queries. Handlers are plain
// dispatch.Definition values so callers can register a subset or add their
// own alongside.
package functions

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/peakform/coachcore/dispatch"
	"github.com/peakform/coachcore/internal/util"
)

type logNutritionArgs struct {
	Description string `json:"description" description:"Free-text description of the meal, e.g. '2 eggs and toast'"`
}

type adjustGoalArgs struct {
	Goal     string `json:"goal" description:"The goal to set or adjust, e.g. 'cut', 'bench press PR'"`
	Target   string `json:"target,omitempty" description:"Concrete target, e.g. '80kg', '180g protein/day'"`
	Timeline string `json:"timeline,omitempty" description:"When the target should be reached"`
}

type queryWorkoutsArgs struct {
	Exercise    string `json:"exercise,omitempty" description:"Filter by exercise name, e.g. 'bench press'"`
	MuscleGroup string `json:"muscle_group,omitempty" description:"Filter by muscle group, e.g. 'chest'"`
	Days        int    `json:"days,omitempty" description:"Number of days to query (1-90, default 14)"`
}

type queryNutritionArgs struct {
	Days         int  `json:"days,omitempty" description:"Number of days to query (1-30, default 7)"`
	IncludeMeals bool `json:"include_meals,omitempty" description:"Include individual meal entries"`
}

type queryRecoveryArgs struct {
	Days int `json:"days,omitempty" description:"Number of days to query (7-30, default 14)"`
}

// Definitions returns every built-in handler bound to the given stores.
func Definitions(s *Stores) []dispatch.Definition {
	return []dispatch.Definition{
		{
			Name:        "log_nutrition",
			Description: "Log a meal from a free-text description. Parses components and estimates macros.",
			Parameters:  util.CreateSchema(logNutritionArgs{}),
			Handler:     dispatch.HandlerFunc(s.logNutrition),
		},
		{
			Name:        "adjust_goal",
			Description: "Set or adjust a coaching goal on the client profile.",
			Parameters:  util.CreateSchema(adjustGoalArgs{}),
			Handler:     dispatch.HandlerFunc(s.adjustGoal),
		},
		{
			Name:        "query_workouts",
			Description: "Query workout history. Use for questions about exercises, training volume, or PRs.",
			Parameters:  util.CreateSchema(queryWorkoutsArgs{}),
			Handler:     dispatch.HandlerFunc(s.queryWorkouts),
		},
		{
			Name:        "query_nutrition",
			Description: "Query nutrition history. Use for questions about eating patterns or macro compliance.",
			Parameters:  util.CreateSchema(queryNutritionArgs{}),
			Handler:     dispatch.HandlerFunc(s.queryNutrition),
		},
		{
			Name:        "query_recovery",
			Description: "Query recovery metrics. Use when the client mentions sleep, fatigue, or readiness.",
			Parameters:  util.CreateSchema(queryRecoveryArgs{}),
			Handler:     dispatch.HandlerFunc(s.queryRecovery),
		},
	}
}

// NewRegistry builds a registry over the stores. With no names, every
// built-in is registered; otherwise only the named subset, failing fast on
// an unknown name.
func NewRegistry(s *Stores, names ...string) (*dispatch.Registry, error) {
	defs := Definitions(s)
	if len(names) == 0 {
		return dispatch.NewRegistry(defs...)
	}

	byName := make(map[string]dispatch.Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	selected := make([]dispatch.Definition, 0, len(names))
	for _, n := range names {
		d, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown built-in function %q", n)
		}
		selected = append(selected, d)
	}
	return dispatch.NewRegistry(selected...)
}

func (s *Stores) logNutrition(ctx context.Context, args map[string]any) (any, error) {
	desc := argString(args, "description")
	if strings.TrimSpace(desc) == "" {
		return nil, &dispatch.FunctionError{Function: "log_nutrition", Code: dispatch.CodeValidation, Field: "description", Message: "description must not be empty"}
	}

	rec := parseFood(desc)
	rec.Date = time.Now()
	s.addNutrition(rec)

	return map[string]any{
		"status":     "logged",
		"name":       rec.Name,
		"calories":   rec.Calories,
		"protein":    rec.Protein,
		"carbs":      rec.Carbs,
		"fat":        rec.Fat,
		"confidence": rec.Confidence,
		"components": rec.Components,
	}, nil
}

func (s *Stores) adjustGoal(ctx context.Context, args map[string]any) (any, error) {
	name := argString(args, "goal")
	if strings.TrimSpace(name) == "" {
		return nil, &dispatch.FunctionError{Function: "adjust_goal", Code: dispatch.CodeValidation, Field: "goal", Message: "goal must not be empty"}
	}

	g := Goal{
		Name:     name,
		Target:   argString(args, "target"),
		Timeline: argString(args, "timeline"),
		SetAt:    time.Now(),
	}
	s.setGoal(g)

	return map[string]any{"status": "updated", "goal": g.Name, "target": g.Target, "timeline": g.Timeline}, nil
}

func (s *Stores) queryWorkouts(ctx context.Context, args map[string]any) (any, error) {
	days := clamp(argInt(args, "days", 14), 1, 90)
	cutoff := time.Now().AddDate(0, 0, -days)

	workouts := s.workoutsSince(cutoff)
	if len(workouts) == 0 {
		return map[string]any{"message": "No workouts found in the specified period"}, nil
	}

	if exercise := strings.ToLower(argString(args, "exercise")); exercise != "" {
		var matched []map[string]any
		for _, w := range workouts {
			for _, e := range w.Exercises {
				if strings.Contains(strings.ToLower(e), exercise) {
					matched = append(matched, map[string]any{
						"date":      w.Date.Format("2006-01-02"),
						"title":     w.Title,
						"exercises": w.Exercises,
					})
					break
				}
			}
		}
		if len(matched) == 0 {
			return map[string]any{"message": fmt.Sprintf("No workouts with %q in the last %d days", exercise, days)}, nil
		}
		return map[string]any{"workouts": matched, "count": len(matched)}, nil
	}

	if group := strings.ToLower(argString(args, "muscle_group")); group != "" {
		sets := 0
		for _, w := range workouts {
			if strings.ToLower(w.MuscleGroup) == group {
				sets += w.Sets
			}
		}
		return map[string]any{
			"muscle_group": group,
			"sets":         sets,
			"period":       fmt.Sprintf("%d days", days),
		}, nil
	}

	summary := make([]map[string]any, 0, 10)
	for i, w := range workouts {
		if i == 10 {
			break
		}
		summary = append(summary, map[string]any{
			"date":      w.Date.Format("2006-01-02"),
			"title":     w.Title,
			"exercises": w.Exercises,
		})
	}
	return map[string]any{"workouts": summary, "total_count": len(workouts)}, nil
}

func (s *Stores) queryNutrition(ctx context.Context, args map[string]any) (any, error) {
	days := clamp(argInt(args, "days", 7), 1, 30)
	includeMeals := argBool(args, "include_meals")
	cutoff := time.Now().AddDate(0, 0, -days)

	records := s.NutritionSince(cutoff)
	if len(records) == 0 {
		return map[string]any{"message": "No nutrition data found"}, nil
	}

	var cal, pro, carb, fat int
	tracked := make(map[string]bool)
	var meals []map[string]any
	for _, r := range records {
		cal += r.Calories
		pro += r.Protein
		carb += r.Carbs
		fat += r.Fat
		tracked[r.Date.Format("2006-01-02")] = true
		if includeMeals {
			meals = append(meals, map[string]any{
				"date":     r.Date.Format("2006-01-02"),
				"name":     r.Name,
				"calories": r.Calories,
				"protein":  r.Protein,
			})
		}
	}
	trackedDays := len(tracked)
	targetCal, targetPro := s.targets()

	result := map[string]any{
		"period":       fmt.Sprintf("%d days", days),
		"tracked_days": trackedDays,
		"averages": map[string]any{
			"calories": cal / trackedDays,
			"protein":  pro / trackedDays,
			"carbs":    carb / trackedDays,
			"fat":      fat / trackedDays,
		},
		"targets": map[string]any{
			"calories": targetCal,
			"protein":  targetPro,
		},
		"protein_compliance": fmt.Sprintf("%d%%", int(math.Round(float64(pro)/float64(trackedDays)/float64(targetPro)*100))),
	}
	if includeMeals {
		result["meals"] = meals
	}
	return result, nil
}

func (s *Stores) queryRecovery(ctx context.Context, args map[string]any) (any, error) {
	days := clamp(argInt(args, "days", 14), 7, 30)
	cutoff := time.Now().AddDate(0, 0, -days)

	entries := s.recoverySince(cutoff)
	if len(entries) == 0 {
		return map[string]any{"message": "No recovery data found"}, nil
	}

	result := map[string]any{"period": fmt.Sprintf("%d days", days)}

	var sleepSum, hrvSum, rhrSum float64
	var sleepN, hrvN, rhrN int
	for _, e := range entries {
		if e.SleepHours > 0 {
			sleepSum += e.SleepHours
			sleepN++
		}
		if e.HRVMs > 0 {
			hrvSum += e.HRVMs
			hrvN++
		}
		if e.RestingHR > 0 {
			rhrSum += e.RestingHR
			rhrN++
		}
	}
	if sleepN > 0 {
		result["sleep"] = map[string]any{
			"average":        math.Round(sleepSum/float64(sleepN)*10) / 10,
			"nights_tracked": sleepN,
		}
	}
	if hrvN > 0 {
		result["hrv"] = map[string]any{"average": math.Round(hrvSum / float64(hrvN)), "readings": hrvN}
	}
	if rhrN > 0 {
		result["resting_hr"] = map[string]any{"average": math.Round(rhrSum / float64(rhrN)), "readings": rhrN}
	}
	return result, nil
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package functions

import (
	"regexp"
	"strconv"
	"strings"
)

// Component is one food item inside a compound meal.
type Component struct {
	Name     string `json:"name"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Carbs    int    `json:"carbs"`
	Fat      int    `json:"fat"`
}

// macros is per-unit nutrition for a known food.
type macros struct {
	calories, protein, carbs, fat int
}

// foodTable covers the common foods the coach sees logged. Unknown foods
// fall back to a generic estimate with low confidence.
var foodTable = map[string]macros{
	"egg":            {70, 6, 1, 5},
	"eggs":           {70, 6, 1, 5},
	"toast":          {80, 3, 15, 1},
	"bread":          {80, 3, 15, 1},
	"rice":           {200, 4, 45, 0},
	"chicken":        {280, 52, 0, 6},
	"chicken breast": {280, 52, 0, 6},
	"banana":         {105, 1, 27, 0},
	"protein shake":  {160, 30, 6, 2},
	"shake":          {160, 30, 6, 2},
	"oatmeal":        {150, 5, 27, 3},
	"yogurt":         {120, 15, 8, 3},
	"beans":          {120, 8, 22, 0},
	"guac":           {150, 2, 8, 13},
	"avocado":        {240, 3, 12, 22},
	"salmon":         {230, 25, 0, 14},
	"steak":          {350, 45, 0, 18},
	"cheese":         {110, 7, 1, 9},
}

var genericEstimate = macros{calories: 250, protein: 10, carbs: 25, fat: 10}

var quantityRe = regexp.MustCompile(`^(\d+)\s+(.+)$`)

// parseFood breaks a free-text meal description into components and sums the
// macros. Confidence is "high" when every component is a known food,
// "medium" when some are, "low" when none are.
func parseFood(text string) NutritionRecord {
	parts := splitComponents(text)

	rec := NutritionRecord{
		Name:        strings.TrimSpace(text),
		Description: text,
	}

	known := 0
	for _, part := range parts {
		count := 1
		name := part
		if m := quantityRe.FindStringSubmatch(part); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 && n <= 50 {
				count = n
				name = m[2]
			}
		}

		food, ok := lookupFood(name)
		if ok {
			known++
		}
		c := Component{
			Name:     name,
			Calories: food.calories * count,
			Protein:  food.protein * count,
			Carbs:    food.carbs * count,
			Fat:      food.fat * count,
		}
		rec.Components = append(rec.Components, c)
		rec.Calories += c.Calories
		rec.Protein += c.Protein
		rec.Carbs += c.Carbs
		rec.Fat += c.Fat
	}

	switch {
	case known == len(parts) && known > 0:
		rec.Confidence = "high"
	case known > 0:
		rec.Confidence = "medium"
	default:
		rec.Confidence = "low"
	}
	return rec
}

func splitComponents(text string) []string {
	normalized := strings.ReplaceAll(strings.ToLower(text), " and ", ",")
	normalized = strings.ReplaceAll(normalized, " with ", ",")
	raw := strings.Split(normalized, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		parts = []string{strings.ToLower(strings.TrimSpace(text))}
	}
	return parts
}

func lookupFood(name string) (macros, bool) {
	name = strings.TrimSpace(name)
	if m, ok := foodTable[name]; ok {
		return m, true
	}
	// Fall back to the longest known food contained in the phrase, so
	// "eggs scrambled" still resolves to eggs.
	var best string
	for food := range foodTable {
		if strings.Contains(name, food) && len(food) > len(best) {
			best = food
		}
	}
	if best != "" {
		return foodTable[best], true
	}
	return genericEstimate, false
}

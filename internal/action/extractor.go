// Package action turns a completed AI analysis into the primary action
// surfaced to the user plus the remaining recommended actions. The mapping is
// pure and idempotent: the same analysis always yields the same result.
package action

import "github.com/kukicivan/ai-hub-sub002/internal/models"

// PrimaryAction is the single most prominent suggested follow-up.
type PrimaryAction struct {
	Type        models.ActionType `json:"type"`
	Color       string            `json:"color"`
	Description string            `json:"description,omitempty"`
}

// Extraction is the result of mapping one analysis.
type Extraction struct {
	Primary     PrimaryAction       `json:"primary"`
	Recommended []models.ActionStep `json:"recommended,omitempty"`
}

// actionColors maps each action type to its display color.
var actionColors = map[models.ActionType]string{
	models.ActionRespond:  "blue",
	models.ActionSchedule: "purple",
	models.ActionTodo:     "orange",
	models.ActionPostpone: "gray",
	models.ActionResearch: "teal",
	models.ActionFollowUp: "green",
	models.ActionArchive:  "slate",
}

// Color returns the display color for an action type, defaulting to the
// respond color for anything unknown.
func Color(t models.ActionType) string {
	if color, ok := actionColors[t]; ok {
		return color
	}
	return actionColors[models.ActionRespond]
}

// Extract selects the first action step as the primary action and returns the
// rest as recommended actions. An analysis with zero steps defaults to
// respond.
func Extract(analysis *models.AnalysisResult) Extraction {
	if analysis == nil || len(analysis.ActionSteps) == 0 {
		return Extraction{
			Primary: PrimaryAction{Type: models.ActionRespond, Color: Color(models.ActionRespond)},
		}
	}

	first := analysis.ActionSteps[0]
	primaryType := first.Type
	if !models.ValidActionType(primaryType) {
		primaryType = models.ActionRespond
	}

	extraction := Extraction{
		Primary: PrimaryAction{
			Type:        primaryType,
			Color:       Color(primaryType),
			Description: first.Description,
		},
	}
	if len(analysis.ActionSteps) > 1 {
		extraction.Recommended = analysis.ActionSteps[1:]
	}
	return extraction
}

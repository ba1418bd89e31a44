package recipe

import (
	"fmt"
	"sort"
	"strings"
)

// ValidateSteps checks that steps are numbered 1..N in order and that every
// step says what to do.
func ValidateSteps(steps []StepRecord) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidSteps)
	}
	for i, s := range steps {
		want := i + 1
		if s.StepNumber <= 0 {
			return fmt.Errorf("%w: step %d has non-positive number %d", ErrInvalidSteps, want, s.StepNumber)
		}
		if s.StepNumber != want {
			return fmt.Errorf("%w: expected step %d, got %d", ErrInvalidSteps, want, s.StepNumber)
		}
		if strings.TrimSpace(s.Action) == "" {
			return fmt.Errorf("%w: step %d has no action", ErrInvalidSteps, s.StepNumber)
		}
	}
	return nil
}

// ValidateScenes checks that scenes and steps correspond one to one and
// returns the scenes ordered by step number.
func ValidateScenes(steps []StepRecord, scenes []SceneRecord) ([]SceneRecord, error) {
	known := make(map[int]bool, len(steps))
	for _, s := range steps {
		known[s.StepNumber] = true
	}

	seen := make(map[int]bool, len(scenes))
	for _, sc := range scenes {
		if !known[sc.StepNumber] {
			return nil, fmt.Errorf("%w: scene references unknown step %d", ErrInvalidScenes, sc.StepNumber)
		}
		if seen[sc.StepNumber] {
			return nil, fmt.Errorf("%w: duplicate scene for step %d", ErrInvalidScenes, sc.StepNumber)
		}
		if strings.TrimSpace(sc.SceneDescription) == "" {
			return nil, fmt.Errorf("%w: scene for step %d has no description", ErrInvalidScenes, sc.StepNumber)
		}
		seen[sc.StepNumber] = true
	}
	for _, s := range steps {
		if !seen[s.StepNumber] {
			return nil, fmt.Errorf("%w: no scene for step %d", ErrInvalidScenes, s.StepNumber)
		}
	}

	ordered := make([]SceneRecord, len(scenes))
	copy(ordered, scenes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StepNumber < ordered[j].StepNumber
	})
	return ordered, nil
}

package status

import (
	"errors"
	"fmt"
	"strings"
)

var ErrTransition = errors.New("status transition not allowed")

// Policy decides which administrator status changes are accepted.
type Policy interface {
	CheckReview(from, to ReviewStatus) error
	CheckProject(from, to ProjectStatus) error
}

// Permissive accepts any valid target status from any current status.
type Permissive struct{}

func (Permissive) CheckReview(_, to ReviewStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown review status %q", ErrTransition, to)
	}
	return nil
}

func (Permissive) CheckProject(_, to ProjectStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown project status %q", ErrTransition, to)
	}
	return nil
}

var reviewEdges = map[ReviewStatus][]ReviewStatus{
	ReviewIncomplete: {ReviewSubmitted},
	ReviewSubmitted:  {ReviewReviewing, ReviewApproved, ReviewRejected},
	ReviewReviewing:  {ReviewApproved, ReviewRejected},
	ReviewApproved:   {ReviewReviewing},
	ReviewRejected:   {ReviewSubmitted},
}

// Strict follows the review graph and only moves the pipeline forward.
type Strict struct{}

func (Strict) CheckReview(from, to ReviewStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown review status %q", ErrTransition, to)
	}
	if from == "" {
		from = ReviewIncomplete
	}
	if from == to {
		return nil
	}
	for _, next := range reviewEdges[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrTransition, from, to)
}

func (Strict) CheckProject(from, to ProjectStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown project status %q", ErrTransition, to)
	}
	if to.Index() < from.OrDefault().Index() {
		return fmt.Errorf("%w: %s -> %s", ErrTransition, from.OrDefault(), to)
	}
	return nil
}

func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "permissive":
		return Permissive{}, nil
	case "strict":
		return Strict{}, nil
	default:
		return nil, fmt.Errorf("unknown status policy %q", name)
	}
}

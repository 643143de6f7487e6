package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

// DefaultQuizzes is the catalog shipped with the service.
func DefaultQuizzes() map[string]QuizDefinition {
	return map[string]QuizDefinition{
		"grooming_mastery": {
			ID:              "grooming_mastery",
			Name:            "Grooming Mastery Quiz",
			QuestionCount:   5,
			RequiredCorrect: 3,
			Points:          50,
			MaxCompletions:  1,
			ActionTitle:     "Completed Grooming Mastery Quiz",
		},
		"product_knowledge": {
			ID:              "product_knowledge",
			Name:            "Product Knowledge Challenge",
			QuestionCount:   4,
			RequiredCorrect: 3,
			Points:          40,
			MaxCompletions:  1,
			ActionTitle:     "Completed Product Knowledge Challenge",
		},
		"skin_type": {
			ID:              "skin_type",
			Name:            "Find Your Skin Type Quiz",
			QuestionCount:   6,
			RequiredCorrect: 6, // every question must be answered
			Points:          30,
			MaxCompletions:  1,
			ActionTitle:     "Completed Skin Type Assessment",
		},
	}
}

// CatalogFromList indexes definitions by ID, rejecting invalid or duplicate entries.
func CatalogFromList(defs []QuizDefinition) (map[string]QuizDefinition, error) {
	out := make(map[string]QuizDefinition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := out[def.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidQuiz, def.ID)
		}
		out[def.ID] = def
	}
	return out, nil
}

// NormalizeEmail lowercases and trims an email, rejecting values that are not addresses.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email required", ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return email, nil
}

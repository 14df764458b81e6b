package service

import (
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// NormalizeInput returns input in Unicode NFC form, the form the engine
// and the character limit are applied to.
func NormalizeInput(input string) string {
	return norm.NFC.String(input)
}

// ValidateNLPInput checks input against the record's MAX_NLP_CHARACTERS
// limit. Empty input is rejected regardless of limits. A limit <= 0 means
// unlimited. Length is measured in bytes of the normalised input.
func ValidateNLPInput(rec *domain.AccessRecord, input string) error {
	const op = "nlp.validate_input"

	input = NormalizeInput(input)

	if len(input) == 0 {
		return domain.Invalid(op, domain.ErrCodeInputEmpty, "The input cannot be empty")
	}

	limit, ok := rec.Variables.Int(domain.VarMaxNLPCharacters)
	if !ok {
		return domain.Internal(
			errors.New("access record has no MAX_NLP_CHARACTERS variable"),
			op, "access record is missing the NLP character limit",
		)
	}

	if limit > 0 && int64(len(input)) > limit {
		return domain.Invalid(op, domain.ErrCodeInputTooLong, fmt.Sprintf(
			"The input exceeds the %d character limit of your subscription", limit))
	}

	return nil
}

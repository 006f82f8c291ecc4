package wsserver

import "github.com/thunder45/service-translate/internal/apierrors"

func authGraceExpired() error {
	return apierrors.New(
		apierrors.CodeValidationMissingField,
		"no authentication frame received within grace window",
		"Authentication timed out.",
	)
}

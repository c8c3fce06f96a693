package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Typed failures surfaced by the engine. Handlers map these to HTTP statuses;
// nothing is silently swallowed — every mutation either succeeds, returns one
// of these, or returns the underlying storage error.
var (
	// Conflicts: caller must not retry blindly.
	ErrAlreadySelected = errors.New("winners already selected for this giveaway")
	ErrAlreadyClaimed  = errors.New("already claimed")
	ErrNotAlternate    = errors.New("winner is not an alternate")
	ErrDuplicateEntry  = errors.New("an entry already exists for this contact")

	// Policy failures.
	ErrInsufficientEntries = errors.New("not enough valid entries to select winners")
	ErrDeadlinePassed      = errors.New("claim deadline has passed")
	ErrNotEligible         = errors.New("not eligible")
	ErrGiveawayClosed      = errors.New("giveaway is not accepting entries")
	ErrRestrictedState     = errors.New("entries from this state are not permitted")

	// Validation failures.
	ErrInvalidContact = errors.New("invalid contact")
	ErrInvalidAction  = errors.New("invalid action")
	ErrW9Required     = errors.New("a W-9 document is required to claim this prize")
)

// errorStatus maps an engine error to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrAlreadySelected),
		errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrNotAlternate),
		errors.Is(err, ErrDuplicateEntry):
		return fiber.StatusConflict
	case errors.Is(err, ErrInsufficientEntries),
		errors.Is(err, ErrNotEligible),
		errors.Is(err, ErrGiveawayClosed),
		errors.Is(err, ErrRestrictedState):
		return fiber.StatusForbidden
	case errors.Is(err, ErrDeadlinePassed):
		return fiber.StatusGone
	case errors.Is(err, ErrInvalidContact),
		errors.Is(err, ErrInvalidAction),
		errors.Is(err, ErrW9Required):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// failJSON writes the standard error envelope for an engine error.
func failJSON(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status == fiber.StatusInternalServerError {
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// services/errors.go
package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// DeclinedError is a user-facing refusal of a lifecycle operation
// (validation, not-found, authorization, or state-conflict). Anything
// else that reaches a handler is treated as an upstream failure.
type DeclinedError struct {
	Status int
	Reason string
}

func (e *DeclinedError) Error() string { return e.Reason }

func declined(status int, reason string) *DeclinedError {
	return &DeclinedError{Status: status, Reason: reason}
}

// replyErr translates a service error into the declined-operation JSON
// shape; callers check "success" before trusting the payload.
func replyErr(c *fiber.Ctx, err error) error {
	var d *DeclinedError
	if errors.As(err, &d) {
		return c.Status(d.Status).JSON(fiber.Map{"success": false, "error": d.Reason})
	}
	log.Printf("❌ [DB] %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "database error"})
}

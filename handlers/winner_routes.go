// handlers/winner_routes.go
package handlers

import (
	"giveaway-engine/middleware"
	"giveaway-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWinnerRoutes(app *fiber.App, winnerService *services.WinnerService, claimService *services.ClaimService) {
	// Public claim routes — the token in the path is the credential
	app.Get("/claims/:token", claimService.GetClaimForm)
	app.Post("/claims/:token", claimService.SubmitClaim)

	admin := app.Group("/admin", middleware.AdminContextMiddleware())

	admin.Post("/giveaways/:id/winners/select", winnerService.SelectWinners)
	admin.Get("/giveaways/:id/winners", winnerService.ListWinners)
	admin.Patch("/winners/:id", winnerService.UpdateWinner)

	admin.Get("/winners/:id/claim", claimService.GetWinnerClaim)
	admin.Patch("/claims/:id", claimService.UpdateClaim)
}

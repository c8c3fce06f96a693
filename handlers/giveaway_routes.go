// handlers/giveaway_routes.go
package handlers

import (
	"giveaway-engine/middleware"
	"giveaway-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGiveawayRoutes(app *fiber.App, giveawayService *services.GiveawayService, entryService *services.EntryService, referralService *services.ReferralService) {
	// Public routes — no user context, but still behind gateway auth
	app.Get("/giveaways/:slug", giveawayService.GetActiveGiveawayBySlug)
	app.Post("/giveaways/:slug/entries", entryService.SubmitEntry)
	app.Post("/entries/:id/bonus", referralService.ClaimBonus)
	app.Get("/entries/:id/referral-code", referralService.GetReferralCode)

	// Admin routes — require user context with the admin role
	admin := app.Group("/admin", middleware.AdminContextMiddleware())

	admin.Post("/giveaways", giveawayService.CreateGiveaway)
	admin.Get("/giveaways", giveawayService.GetAllGiveaways)
	admin.Get("/giveaways/:id", giveawayService.GetGiveawayByID)
	admin.Patch("/giveaways/:id", giveawayService.UpdateGiveaway)
	admin.Patch("/giveaways/:id/status", giveawayService.UpdateGiveawayStatus)

	admin.Get("/giveaways/:id/entries", entryService.GetEntriesForGiveaway)
	admin.Get("/giveaways/:id/entries/summary", entryService.GetEntrySummary)
	admin.Patch("/entries/:id/validity", entryService.SetEntryValidity)
}

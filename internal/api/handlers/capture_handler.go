package handlers

import (
	"net/http"

	"example.com/lifeline/agent/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// CaptureHandler exposes the field-capture endpoints the app shell calls.
// Each one commits locally and queues the outbox event; network state never
// affects the response.
type CaptureHandler struct {
	donors       *services.DonorService
	donations    *services.DonationService
	appointments *services.AppointmentService
}

// NewCaptureHandler creates a new capture handler
func NewCaptureHandler(
	donors *services.DonorService,
	donations *services.DonationService,
	appointments *services.AppointmentService,
) *CaptureHandler {
	return &CaptureHandler{
		donors:       donors,
		donations:    donations,
		appointments: appointments,
	}
}

// RegisterRoutes registers the capture routes
func (h *CaptureHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/donors", h.RegisterDonor)
	router.POST("/donations", h.RecordDonation)
	router.POST("/appointments", h.ScheduleAppointment)
}

// RegisterDonor handles a new donor registration
func (h *CaptureHandler) RegisterDonor(c *gin.Context) {
	var input services.RegisterDonorInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	donor, err := h.donors.RegisterDonor(c.Request.Context(), input)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register donor")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register donor"})
		return
	}

	c.JSON(http.StatusCreated, donor)
}

// RecordDonation handles a captured donation
func (h *CaptureHandler) RecordDonation(c *gin.Context) {
	var input services.RecordDonationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	donation, err := h.donations.RecordDonation(c.Request.Context(), input)
	if err != nil {
		log.Error().Err(err).Msg("Failed to record donation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record donation"})
		return
	}

	c.JSON(http.StatusCreated, donation)
}

// ScheduleAppointment handles a scheduled appointment
func (h *CaptureHandler) ScheduleAppointment(c *gin.Context) {
	var input services.ScheduleAppointmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	appointment, err := h.appointments.ScheduleAppointment(c.Request.Context(), input)
	if err != nil {
		log.Error().Err(err).Msg("Failed to schedule appointment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule appointment"})
		return
	}

	c.JSON(http.StatusCreated, appointment)
}

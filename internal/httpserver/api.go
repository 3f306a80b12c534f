package httpserver

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"aarogya-bot/internal/convo"
	"aarogya-bot/internal/session"
	"aarogya-bot/internal/store"

	"github.com/google/uuid"
)

var pinPattern = regexp.MustCompile(`^\d{6}$`)

// Consent records the user's agreement to proceed.
type Consent struct {
	Accepted  bool   `json:"accepted"`
	Timestamp string `json:"timestamp"`
}

// UserInfo is the demographic profile submitted at onboarding.
type UserInfo struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
	Location string `json:"location"`
	Phone    string `json:"phone,omitempty"`
}

// StartPayload combines consent and user info for /start.
type StartPayload struct {
	Consent Consent  `json:"consent"`
	User    UserInfo `json:"user"`
}

// SymptomData describes a complaint.
type SymptomData struct {
	Description string `json:"description"`
	Duration    string `json:"duration,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// ConsultRequest asks for a paid consultation.
type ConsultRequest struct {
	User        UserInfo    `json:"user"`
	Symptoms    SymptomData `json:"symptoms"`
	ConsultType string      `json:"consult_type,omitempty"`
}

// Summary is a free-form consultation summary.
type Summary struct {
	UserPhone string `json:"user_phone,omitempty"`
	Summary   string `json:"summary"`
	ConsultID string `json:"consult_id,omitempty"`
}

func (u UserInfo) validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if u.Age <= 0 || u.Age > 120 {
		return fmt.Errorf("age must be between 1 and 120")
	}
	if isDigits(u.Location) && !pinPattern.MatchString(u.Location) {
		return fmt.Errorf("PIN must be 6 digits")
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload StartPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if !payload.Consent.Accepted {
		writeError(w, http.StatusForbidden, "Consent required")
		return
	}
	if err := payload.User.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile := store.UserProfile{
		Phone:       payload.User.Phone,
		Name:        payload.User.Name,
		Age:         payload.User.Age,
		Gender:      payload.User.Gender,
		Location:    payload.User.Location,
		ConsentTime: payload.Consent.Timestamp,
	}
	if err := s.deps.Store.SaveUser(r.Context(), profile); err != nil {
		if !errors.Is(err, store.ErrNotConfigured) {
			s.logger.Error("save user failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save user")
			return
		}
		s.logger.Warn("user not persisted, store unconfigured", "phone", payload.User.Phone)
	}

	greeting := fmt.Sprintf("Welcome %s! How can I help you today?", payload.User.Name)
	writeJSON(w, http.StatusOK, map[string]string{"message": greeting})
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	var symptom SymptomData
	if !decodeJSON(w, r, &symptom) {
		return
	}
	if strings.TrimSpace(symptom.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	msgs := []session.Message{{Role: session.RoleUser, Content: symptom.Description}}
	reply, err := s.deps.Completer.Complete(r.Context(), msgs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			reply = convo.SlowReply
		} else {
			s.logger.Error("triage completion failed", "error", err)
			reply = convo.FailReply
		}
	}

	record := store.ChatLogRecord{
		Input:  symptom.Description,
		Output: reply,
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.deps.Store.SaveChatLog(r.Context(), record); err != nil && !errors.Is(err, store.ErrNotConfigured) {
		s.logger.Warn("triage chat log failed", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleConsult(w http.ResponseWriter, r *http.Request) {
	var payload ConsultRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	consultType := r.URL.Query().Get("consult_type")
	if consultType == "" {
		consultType = payload.ConsultType
	}
	if consultType == "" {
		consultType = "audio"
	}

	amount := s.cfg.ConsultVideoPrice
	if consultType == "audio" {
		amount = s.cfg.ConsultAudioPrice
	}

	description := fmt.Sprintf("%s %s consult", s.cfg.BotName, consultType)
	link, err := s.deps.Gateway.CreatePaymentLink(r.Context(), amount, description, payload.User.Phone)
	if err != nil {
		s.logger.Error("consult payment link failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "payment gateway unavailable")
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	record := store.ConsultRequestRecord{
		RequestID: uuid.NewString(),
		User: store.UserProfile{
			Phone:    payload.User.Phone,
			Name:     payload.User.Name,
			Age:      payload.User.Age,
			Gender:   payload.User.Gender,
			Location: payload.User.Location,
		},
		Symptoms: store.SymptomData{
			Description: payload.Symptoms.Description,
			Duration:    payload.Symptoms.Duration,
			Severity:    payload.Symptoms.Severity,
		},
		ConsultType: consultType,
		RequestedAt: now,
		PaymentLink: link.ShortURL,
		LinkID:      link.ID,
	}
	if err := s.deps.Store.SaveConsultRequest(r.Context(), record); err != nil && !errors.Is(err, store.ErrNotConfigured) {
		s.logger.Warn("consult request not persisted", "error", err)
	}

	if payload.User.Phone != "" {
		pending := store.PaymentRecord{
			Amount:  float64(amount),
			LinkURL: link.ShortURL,
			LinkID:  link.ID,
			Status:  store.PaymentPending,
			Time:    now,
		}
		if err := s.deps.Store.RecordPayment(r.Context(), payload.User.Phone, pending); err != nil && !errors.Is(err, store.ErrNotConfigured) {
			s.logger.Warn("pending payment not persisted", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"consult_id":   record.RequestID,
		"payment_link": map[string]string{"id": link.ID, "url": link.ShortURL},
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var payload Summary
	if !decodeJSON(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.Summary) == "" {
		writeError(w, http.StatusBadRequest, "summary is required")
		return
	}

	record := store.SummaryRecord{
		UserPhone: payload.UserPhone,
		Summary:   payload.Summary,
		ConsultID: payload.ConsultID,
		Time:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.deps.Store.SaveSummary(r.Context(), record); err != nil {
		if !errors.Is(err, store.ErrNotConfigured) {
			s.logger.Error("save summary failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save summary")
			return
		}
		s.logger.Warn("summary not persisted, store unconfigured")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// twimlResponse is the transport reply envelope for /whatsapp.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// handleWhatsApp receives the messaging-platform webhook. The transport
// expects a valid TwiML envelope on every request, so this handler always
// answers 200 and converts any internal failure into the fixed fallback.
func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reply := convo.FallbackReply
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("whatsapp handler panicked", "panic", rec)
				s.metrics.Errors.WithLabelValues("whatsapp_handler").Inc()
			}
		}()

		if err := r.ParseForm(); err != nil {
			s.logger.Warn("whatsapp form parse failed", "error", err)
			return
		}
		mediaCount, _ := strconv.Atoi(r.PostFormValue("NumMedia"))
		reply = s.deps.Engine.HandleInbound(r.Context(), convo.InboundMessage{
			From:       r.PostFormValue("From"),
			Body:       r.PostFormValue("Body"),
			MediaCount: mediaCount,
		})
	}()

	writeTwiML(w, reply)
}

func writeTwiML(w http.ResponseWriter, message string) {
	body, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		body = []byte("<Response><Message>" + convo.FallbackReply + "</Message></Response>")
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

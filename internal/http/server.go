package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"craftly/marketplace/internal/auth"
	"craftly/marketplace/internal/config"
	"craftly/marketplace/internal/model"
	"craftly/marketplace/internal/payments"
	"craftly/marketplace/internal/roles"
	"craftly/marketplace/internal/settlement"
)

// Store is the slice of the storage gateway the HTTP surface drives.
// *repository.Store satisfies it; tests use an in-memory fake.
type Store interface {
	CreateUser(ctx context.Context, user model.User) (bool, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	ListUsers(ctx context.Context, limit int) ([]model.User, error)
	ListInstructors(ctx context.Context, limit int) ([]model.User, error)
	UpdateUserRole(ctx context.Context, userID, role string) (model.User, error)
	DeleteUser(ctx context.Context, userID string) (bool, error)

	CreateClass(ctx context.Context, class model.Class) error
	GetClass(ctx context.Context, classID string) (model.Class, error)
	ListClasses(ctx context.Context, limit int) ([]model.Class, error)
	ListClassesByInstructor(ctx context.Context, email string) ([]model.Class, error)
	UpdateClassStatus(ctx context.Context, classID, status string) (bool, error)
	SetClassFeedback(ctx context.Context, classID, feedback string) (bool, error)
	DeleteClass(ctx context.Context, classID string) (bool, error)
	AdjustClassSeats(ctx context.Context, classID string) (bool, error)

	CreateEnrollment(ctx context.Context, enrollment model.Enrollment) error
	GetEnrollment(ctx context.Context, enrollmentID string) (model.Enrollment, error)
	ListEnrollmentsByEmail(ctx context.Context, email string) ([]model.Enrollment, error)
	DeleteEnrollment(ctx context.Context, enrollmentID string) (bool, error)

	RecordPayment(ctx context.Context, payment model.Payment) (bool, error)
	ListPaymentsByEmail(ctx context.Context, email string) ([]model.Payment, error)

	CreateBlogPost(ctx context.Context, post model.BlogPost) error
	ListBlogPosts(ctx context.Context, limit int) ([]model.BlogPost, error)
}

type Server struct {
	cfg     config.Config
	store   Store
	roles   *roles.Resolver
	intents payments.IntentCreator
}

func NewServer(cfg config.Config, store Store, resolver *roles.Resolver, intents payments.IntentCreator) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		roles:   resolver,
		intents: intents,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/jwt", s.handleIssueToken)

	r.Post("/users", s.handleCreateUser)
	r.With(s.authMiddleware).Get("/all-users", s.handleListUsers)
	r.With(s.authMiddleware, s.requireAdmin).Patch("/users/admin/{userID}", s.handleUpdateUserRole)
	r.With(s.authMiddleware, s.requireAdmin).Delete("/users/{userID}", s.handleDeleteUser)
	r.With(s.authMiddleware).Get("/users/instructor/{email}", s.handleInstructorCheck)
	r.With(s.authMiddleware).Get("/users/admin/{email}", s.handleAdminCheck)
	r.Get("/all-instructors", s.handleListInstructors)

	r.Get("/all-classes", s.handleListClasses)
	r.With(s.authMiddleware).Post("/classes", s.handleCreateClass)
	r.With(s.authMiddleware).Get("/classes/mine", s.handleClassesByInstructor)
	r.With(s.authMiddleware, s.requireAdmin).Patch("/classes/{classID}/status", s.handleUpdateClassStatus)
	r.With(s.authMiddleware, s.requireAdmin).Patch("/classes/{classID}/feedback", s.handleClassFeedback)
	r.With(s.authMiddleware, s.requireAdmin).Delete("/classes/{classID}", s.handleDeleteClass)

	r.With(s.authMiddleware).Get("/enrollments", s.handleListEnrollments)
	r.Get("/enrollments/{enrollmentID}", s.handleGetEnrollment)
	r.With(s.authMiddleware).Post("/enrollments", s.handleCreateEnrollment)
	r.With(s.authMiddleware).Delete("/enrollments/{enrollmentID}", s.handleDeleteEnrollment)

	r.Get("/all-blogs", s.handleListBlogs)
	r.With(s.authMiddleware, s.requireAdmin).Post("/blogs", s.handleCreateBlog)

	r.With(s.authMiddleware).Post("/create-payment-intent", s.handleCreateIntent)
	r.With(s.authMiddleware).Post("/payments", s.handleCreatePayment)
	r.With(s.authMiddleware).Get("/payment-history", s.handlePaymentHistory)

	return r
}

type issueTokenRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	token, err := auth.NewToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.TokenTTL, auth.Claims{Email: req.Email})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
}

type userSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedOn int64  `json:"createdOn"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Role = strings.TrimSpace(strings.ToLower(req.Role))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleStudent
	}
	if !isValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	user := model.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Name:      strings.TrimSpace(req.Name),
		Role:      req.Role,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.store.CreateUser(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, map[string]string{"message": "user already exists"})
		return
	}

	writeJSON(w, http.StatusCreated, mapUserSummary(user))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context(), limitParam(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]userSummary, 0, len(users))
	for _, user := range users {
		summaries = append(summaries, mapUserSummary(user))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id")
		return
	}

	var req updateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Role = strings.TrimSpace(strings.ToLower(req.Role))
	if !isValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	user, err := s.store.UpdateUserRole(r.Context(), userID, req.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.roles.Invalidate(r.Context(), user.Email)

	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	deleted, err := s.store.DeleteUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	s.roles.Invalidate(r.Context(), user.Email)

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleInstructorCheck answers "is this email an instructor". Asking
// about someone else without admin rights gets a soft false rather than
// an error, so the endpoint never confirms whether the email exists.
func (s *Server) handleInstructorCheck(w http.ResponseWriter, r *http.Request) {
	s.handleRoleCheck(w, r, model.RoleInstructor, "instructor")
}

func (s *Server) handleAdminCheck(w http.ResponseWriter, r *http.Request) {
	s.handleRoleCheck(w, r, model.RoleAdmin, "admin")
}

func (s *Server) handleRoleCheck(w http.ResponseWriter, r *http.Request, wantRole, field string) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	email := strings.TrimSpace(strings.ToLower(chi.URLParam(r, "email")))
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	if claims.Email != email {
		callerRole, err := s.roles.Resolve(r.Context(), claims.Email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		if callerRole != model.RoleAdmin {
			writeJSON(w, http.StatusOK, map[string]bool{field: false})
			return
		}
	}

	role, err := s.roles.Resolve(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{field: role == wantRole})
}

func (s *Server) handleListInstructors(w http.ResponseWriter, r *http.Request) {
	instructors, err := s.store.ListInstructors(r.Context(), limitParam(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]userSummary, 0, len(instructors))
	for _, instructor := range instructors {
		summaries = append(summaries, mapUserSummary(instructor))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type classSummary struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	InstructorName  string  `json:"instructorName"`
	InstructorEmail string  `json:"instructorEmail"`
	Image           string  `json:"image,omitempty"`
	Price           float64 `json:"price"`
	AvailableSeats  int32   `json:"availableSeats"`
	TotalStudents   int32   `json:"totalStudents"`
	Status          string  `json:"status"`
	Feedback        *string `json:"feedback,omitempty"`
	CreatedOn       int64   `json:"createdOn"`
}

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := s.store.ListClasses(r.Context(), limitParam(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]classSummary, 0, len(classes))
	for _, class := range classes {
		summaries = append(summaries, mapClassSummary(class))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createClassRequest struct {
	Name            string  `json:"name"`
	InstructorName  string  `json:"instructorName"`
	InstructorEmail string  `json:"instructorEmail"`
	Image           string  `json:"image"`
	Price           float64 `json:"price"`
	AvailableSeats  int32   `json:"availableSeats"`
}

func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.InstructorEmail = strings.TrimSpace(strings.ToLower(req.InstructorEmail))
	if req.InstructorEmail == "" {
		req.InstructorEmail = claims.Email
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if req.Price < 0 || req.AvailableSeats < 0 {
		writeError(w, http.StatusBadRequest, "invalid_fields")
		return
	}

	class := model.Class{
		ID:              uuid.NewString(),
		Name:            req.Name,
		InstructorName:  strings.TrimSpace(req.InstructorName),
		InstructorEmail: req.InstructorEmail,
		Image:           req.Image,
		Price:           req.Price,
		AvailableSeats:  req.AvailableSeats,
		Status:          model.ClassPending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.CreateClass(r.Context(), class); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapClassSummary(class))
}

func (s *Server) handleClassesByInstructor(w http.ResponseWriter, r *http.Request) {
	email, ok := s.ownedEmailQuery(w, r)
	if !ok {
		return
	}
	if email == "" {
		writeJSON(w, http.StatusOK, []classSummary{})
		return
	}

	classes, err := s.store.ListClassesByInstructor(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]classSummary, 0, len(classes))
	for _, class := range classes {
		summaries = append(summaries, mapClassSummary(class))
	}
	writeJSON(w, http.StatusOK, summaries)
}

type updateClassStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateClassStatus(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	if classID == "" {
		writeError(w, http.StatusBadRequest, "missing_class_id")
		return
	}

	var req updateClassStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Status = strings.TrimSpace(strings.ToLower(req.Status))
	if !isValidClassStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	updated, err := s.store.UpdateClassStatus(r.Context(), classID, req.Status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

type classFeedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) handleClassFeedback(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	if classID == "" {
		writeError(w, http.StatusBadRequest, "missing_class_id")
		return
	}

	var req classFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Feedback) == "" {
		writeError(w, http.StatusBadRequest, "missing_feedback")
		return
	}

	updated, err := s.store.SetClassFeedback(r.Context(), classID, req.Feedback)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !updated {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	if classID == "" {
		writeError(w, http.StatusBadRequest, "missing_class_id")
		return
	}

	deleted, err := s.store.DeleteClass(r.Context(), classID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type enrollmentSummary struct {
	ID           string `json:"id"`
	StudentEmail string `json:"studentEmail"`
	ClassID      string `json:"classId"`
	ClassName    string `json:"className"`
	CreatedOn    int64  `json:"createdOn"`
}

func (s *Server) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	email, ok := s.ownedEmailQuery(w, r)
	if !ok {
		return
	}
	if email == "" {
		writeJSON(w, http.StatusOK, []enrollmentSummary{})
		return
	}

	enrollments, err := s.store.ListEnrollmentsByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]enrollmentSummary, 0, len(enrollments))
	for _, enrollment := range enrollments {
		summaries = append(summaries, mapEnrollmentSummary(enrollment))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetEnrollment(w http.ResponseWriter, r *http.Request) {
	enrollmentID := chi.URLParam(r, "enrollmentID")
	if enrollmentID == "" {
		writeError(w, http.StatusBadRequest, "missing_enrollment_id")
		return
	}

	enrollment, err := s.store.GetEnrollment(r.Context(), enrollmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "enrollment_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, mapEnrollmentSummary(enrollment))
}

type createEnrollmentRequest struct {
	ClassID string `json:"classId"`
}

func (s *Server) handleCreateEnrollment(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createEnrollmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.ClassID == "" {
		writeError(w, http.StatusBadRequest, "missing_class_id")
		return
	}

	class, err := s.store.GetClass(r.Context(), req.ClassID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	enrollment := model.Enrollment{
		ID:           uuid.NewString(),
		StudentEmail: claims.Email,
		ClassID:      class.ID,
		ClassName:    class.Name,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateEnrollment(r.Context(), enrollment); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, mapEnrollmentSummary(enrollment))
}

func (s *Server) handleDeleteEnrollment(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	enrollmentID := chi.URLParam(r, "enrollmentID")
	if enrollmentID == "" {
		writeError(w, http.StatusBadRequest, "missing_enrollment_id")
		return
	}

	enrollment, err := s.store.GetEnrollment(r.Context(), enrollmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "enrollment_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if !s.authorizeOwner(w, r, claims, enrollment.StudentEmail) {
		return
	}

	deleted, err := s.store.DeleteEnrollment(r.Context(), enrollmentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "enrollment_not_found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

type blogSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	CreatedOn int64  `json:"createdOn"`
}

func (s *Server) handleListBlogs(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListBlogPosts(r.Context(), limitParam(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]blogSummary, 0, len(posts))
	for _, post := range posts {
		summaries = append(summaries, blogSummary{
			ID:        post.ID,
			Title:     post.Title,
			Author:    post.Author,
			Content:   post.Content,
			CreatedOn: post.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

type createBlogRequest struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

func (s *Server) handleCreateBlog(w http.ResponseWriter, r *http.Request) {
	var req createBlogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	post := model.BlogPost{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Author:    strings.TrimSpace(req.Author),
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateBlogPost(r.Context(), post); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, blogSummary{
		ID:        post.ID,
		Title:     post.Title,
		Author:    post.Author,
		Content:   post.Content,
		CreatedOn: post.CreatedAt.Unix(),
	})
}

type createIntentRequest struct {
	Price float64 `json:"price"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_price")
		return
	}

	clientSecret, err := s.intents.CreateIntent(r.Context(), payments.AmountMinorUnits(req.Price), s.cfg.Currency)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"clientSecret": clientSecret})
}

type createPaymentRequest struct {
	Email         string  `json:"email"`
	ClassID       string  `json:"classId"`
	EnrollmentID  string  `json:"enrollId"`
	ClassName     string  `json:"className"`
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transactionId"`
}

type settlementResponse struct {
	PaymentRecorded        bool   `json:"paymentRecorded"`
	EnrollmentRemoved      bool   `json:"enrollmentRemoved"`
	SeatsAdjusted          bool   `json:"seatsAdjusted"`
	AlreadySettled         bool   `json:"alreadySettled"`
	ReconciliationRequired bool   `json:"reconciliationRequired"`
	Error                  string `json:"error,omitempty"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.ClassID == "" || req.EnrollmentID == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		req.Email = claims.Email
	}

	payment := model.Payment{
		ID:            uuid.NewString(),
		Email:         req.Email,
		ClassID:       req.ClassID,
		EnrollmentID:  req.EnrollmentID,
		ClassName:     req.ClassName,
		Amount:        req.Amount,
		TransactionID: req.TransactionID,
		CreatedAt:     time.Now().UTC(),
	}

	result, err := settlement.Settle(r.Context(), s.store, payment)
	resp := settlementResponse{
		PaymentRecorded:        result.PaymentRecorded,
		EnrollmentRemoved:      result.EnrollmentRemoved,
		SeatsAdjusted:          result.SeatsAdjusted,
		AlreadySettled:         result.AlreadySettled,
		ReconciliationRequired: result.ReconciliationRequired,
	}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var settleErr *settlement.Error
	if !errors.As(err, &settleErr) {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp.Error = settleErr.Code
	switch settleErr.Code {
	case settlement.ErrPaymentFailed:
		writeJSON(w, http.StatusBadGateway, resp)
	case settlement.ErrAlreadySettled:
		writeJSON(w, http.StatusConflict, resp)
	case settlement.ErrReconciliationRequired:
		// The charge is recorded, so the transport call "succeeds";
		// the flag tells the caller the settlement is incomplete.
		writeJSON(w, http.StatusOK, resp)
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

type paymentSummary struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	ClassID       string  `json:"classId"`
	EnrollmentID  string  `json:"enrollId"`
	ClassName     string  `json:"className"`
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transactionId,omitempty"`
	Date          int64   `json:"date"`
}

func (s *Server) handlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	email, ok := s.ownedEmailQuery(w, r)
	if !ok {
		return
	}
	if email == "" {
		writeJSON(w, http.StatusOK, []paymentSummary{})
		return
	}

	history, err := s.store.ListPaymentsByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]paymentSummary, 0, len(history))
	for _, payment := range history {
		summaries = append(summaries, paymentSummary{
			ID:            payment.ID,
			Email:         payment.Email,
			ClassID:       payment.ClassID,
			EnrollmentID:  payment.EnrollmentID,
			ClassName:     payment.ClassName,
			Amount:        payment.Amount,
			TransactionID: payment.TransactionID,
			Date:          payment.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			// Never says which part of verification failed.
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		role, err := s.roles.Resolve(r.Context(), claims.Email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		if role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ownedEmailQuery reads the email query param for list-style reads.
// An absent param is a soft fail: the caller gets an empty result, not
// an error. A mismatching param without admin rights is a hard 403,
// reported before any data is read.
func (s *Server) ownedEmailQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}

	email := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("email")))
	if email == "" {
		return "", true
	}
	if !s.authorizeOwner(w, r, claims, email) {
		return "", false
	}
	return email, true
}

// authorizeOwner grants access when the caller is the subject or an
// admin. On denial it writes the response and returns false.
func (s *Server) authorizeOwner(w http.ResponseWriter, r *http.Request, claims *auth.Claims, targetEmail string) bool {
	if claims.Email == targetEmail {
		return true
	}
	role, err := s.roles.Resolve(r.Context(), claims.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return false
	}
	if role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func isValidRole(role string) bool {
	switch role {
	case model.RoleStudent, model.RoleInstructor, model.RoleAdmin:
		return true
	default:
		return false
	}
}

func isValidClassStatus(status string) bool {
	switch status {
	case model.ClassPending, model.ClassApproved, model.ClassDenied:
		return true
	default:
		return false
	}
}

func mapUserSummary(user model.User) userSummary {
	return userSummary{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedOn: user.CreatedAt.Unix(),
	}
}

func mapClassSummary(class model.Class) classSummary {
	return classSummary{
		ID:              class.ID,
		Name:            class.Name,
		InstructorName:  class.InstructorName,
		InstructorEmail: class.InstructorEmail,
		Image:           class.Image,
		Price:           class.Price,
		AvailableSeats:  class.AvailableSeats,
		TotalStudents:   class.TotalStudents,
		Status:          class.Status,
		Feedback:        class.Feedback,
		CreatedOn:       class.CreatedAt.Unix(),
	}
}

func mapEnrollmentSummary(enrollment model.Enrollment) enrollmentSummary {
	return enrollmentSummary{
		ID:           enrollment.ID,
		StudentEmail: enrollment.StudentEmail,
		ClassID:      enrollment.ClassID,
		ClassName:    enrollment.ClassName,
		CreatedOn:    enrollment.CreatedAt.Unix(),
	}
}

func limitParam(r *http.Request, fallback int) int {
	limit := fallback
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

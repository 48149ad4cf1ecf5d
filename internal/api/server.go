package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// TokenCodec issues tokens at login and verifies them on every
// authenticated request.
type TokenCodec interface {
	IssueToken(user *types.User) (string, error)
	DecodeToken(raw string) (types.Identity, error)
}

// ConnectionStats exposes live connection counts for the health
// endpoint.
type ConnectionStats interface {
	Stats() map[string]int
}

// Server is the HTTP surface: account and class management, attendance
// session control, and the real-time upgrade endpoint.
type Server struct {
	store     interfaces.Store
	session   interfaces.Session
	codec     TokenCodec
	stats     ConnectionStats
	wsHandler http.HandlerFunc
	engine    *gin.Engine
}

// NewServer wires the routes. The WebSocket handler is passed in as a
// plain http.HandlerFunc so this package stays independent of the
// real-time implementation.
func NewServer(store interfaces.Store, session interfaces.Session, codec TokenCodec, stats ConnectionStats, wsHandler http.HandlerFunc) *Server {
	s := &Server{
		store:     store,
		session:   session,
		codec:     codec,
		stats:     stats,
		wsHandler: wsHandler,
		engine:    gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ws", gin.WrapF(s.wsHandler))

	authGroup := s.engine.Group("/auth")
	{
		authGroup.POST("/signup", s.handleSignup)
		authGroup.POST("/login", s.handleLogin)
	}

	authed := s.engine.Group("/", s.Authenticate())
	{
		authed.POST("/class", TeacherOnly(), s.handleCreateClass)
		authed.POST("/class/:id/add-student", TeacherOnly(), s.handleAddStudent)
		authed.GET("/class/:id", s.handleGetClass)
		authed.GET("/students", TeacherOnly(), s.handleListStudents)
		authed.GET("/class/:id/my-attendance", StudentOnly(), s.handleMyAttendance)

		authed.POST("/attendance/start", TeacherOnly(), s.handleStartAttendance)
		authed.POST("/attendance/cancel", TeacherOnly(), s.handleCancelAttendance)
	}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Password must be between 6 and 72 characters")
		return
	}

	user := &types.User{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Email:    req.Email,
		Password: hash,
		Role:     req.Role,
	}
	if err := user.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, interfaces.ErrDuplicateEmail) {
			respondError(c, http.StatusConflict, "Email already registered")
			return
		}
		log.Printf("signup: failed to create user: %v", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("login: failed to load user: %v", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		respondError(c, http.StatusUnauthorized, "Wrong password")
		return
	}

	token, err := s.codec.IssueToken(user)
	if err != nil {
		log.Printf("login: failed to issue token: %v", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "user": user})
}

type createClassRequest struct {
	Name string `json:"className"`
}

func (s *Server) handleCreateClass(c *gin.Context) {
	var req createClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	class := &types.Class{
		ID:         uuid.New().String(),
		Name:       req.Name,
		TeacherID:  identityFrom(c).UserID,
		StudentIDs: []string{},
	}
	if err := class.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.CreateClass(c.Request.Context(), class); err != nil {
		log.Printf("create class: %v", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "class": class})
}

type addStudentRequest struct {
	StudentID string `json:"studentId"`
}

func (s *Server) handleAddStudent(c *gin.Context) {
	var req addStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StudentID == "" {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	student, err := s.store.GetUser(c.Request.Context(), req.StudentID)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "Student not found")
			return
		}
		log.Printf("add student: failed to load user: %v", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if student.Role != types.RoleStudent {
		respondError(c, http.StatusBadRequest, "User is not a student")
		return
	}

	classID := c.Param("id")
	if err := s.store.AddStudentToClass(c.Request.Context(), classID, req.StudentID); err != nil {
		if errors.Is(err, interfaces.ErrClassNotFound) {
			respondError(c, http.StatusNotFound, "Class not found")
			return
		}
		log.Printf("add student: %v", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleGetClass(c *gin.Context) {
	class, err := s.store.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, interfaces.ErrClassNotFound) {
			respondError(c, http.StatusNotFound, "Class not found")
			return
		}
		log.Printf("get class: %v", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "class": class})
}

func (s *Server) handleListStudents(c *gin.Context) {
	students, err := s.store.ListStudents(c.Request.Context())
	if err != nil {
		log.Printf("list students: %v", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "students": students})
}

func (s *Server) handleMyAttendance(c *gin.Context) {
	records, err := s.store.GetStudentAttendance(c.Request.Context(), c.Param("id"), identityFrom(c).UserID)
	if err != nil {
		log.Printf("my attendance: %v", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
}

type startAttendanceRequest struct {
	ClassID string `json:"classId"`
}

func (s *Server) handleStartAttendance(c *gin.Context) {
	var req startAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ClassID == "" {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	class, err := s.store.GetClass(c.Request.Context(), req.ClassID)
	if err != nil {
		if errors.Is(err, interfaces.ErrClassNotFound) {
			respondError(c, http.StatusNotFound, "Class not found")
			return
		}
		log.Printf("start attendance: failed to load class: %v", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	snapshot, err := s.session.Start(class.ID, class.StudentIDs)
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrSessionAlreadyActive):
			respondError(c, http.StatusConflict, "An attendance session is already active")
		case errors.Is(err, attendance.ErrEmptyRoster):
			respondError(c, http.StatusBadRequest, "Class has no students")
		default:
			log.Printf("start attendance: %v", err)
			respondError(c, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "session": snapshot})
}

// handleCancelAttendance discards the live session without persisting
// anything. Idempotent: cancelling with no session open succeeds.
func (s *Server) handleCancelAttendance(c *gin.Context) {
	s.session.Clear()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"connections":    s.stats.Stats(),
		"active_session": s.session.Active(),
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

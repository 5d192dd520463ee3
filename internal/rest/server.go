package rest

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/bookhaven/library/internal/auth"
	"github.com/bookhaven/library/internal/db"
	"github.com/bookhaven/library/internal/events"
	"github.com/bookhaven/library/internal/metrics"
	"github.com/bookhaven/library/internal/repo"
)

// Server wires the repositories, token issuer and event publisher
// behind the HTTP API.
type Server struct {
	books       *repo.BookRepository
	readers     *repo.ReaderRepository
	users       *repo.UserRepository
	circulation *repo.CirculationRepository
	publisher   events.Publisher
	tokens      *auth.TokenIssuer
	validate    *validator.Validate
	bcryptCost  int
	database    *db.DB
	log         *zap.Logger
}

// NewServer creates the API server and its repositories.
func NewServer(database *db.DB, publisher events.Publisher, tokens *auth.TokenIssuer, bcryptCost int, log *zap.Logger) *Server {
	validate := validator.New()
	// Report validation failures under the JSON field name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		books:       repo.NewBookRepository(database, log),
		readers:     repo.NewReaderRepository(database, log),
		users:       repo.NewUserRepository(database, log),
		circulation: repo.NewCirculationRepository(database, log),
		publisher:   publisher,
		tokens:      tokens,
		validate:    validate,
		bcryptCost:  bcryptCost,
		database:    database,
		log:         log,
	}
}

// Router builds the full route table. Auth endpoints, health and
// metrics are open; everything else requires a bearer token.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metricsMiddleware)

	// mux runs Use middleware on matched routes only, so the fallback
	// handlers carry the chain themselves
	r.NotFoundHandler = s.instrument(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	}))
	r.MethodNotAllowedHandler = s.instrument(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	}))

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	api := r.PathPrefix("/").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/books", s.handleCreateBook).Methods(http.MethodPost)
	api.HandleFunc("/books", s.handleListBooks).Methods(http.MethodGet)
	api.HandleFunc("/books/{id}", s.handleGetBook).Methods(http.MethodGet)
	api.HandleFunc("/books/{id}", s.handleUpdateBook).Methods(http.MethodPut)
	api.HandleFunc("/books/{id}", s.handleDeleteBook).Methods(http.MethodDelete)

	api.HandleFunc("/readers", s.handleCreateReader).Methods(http.MethodPost)
	api.HandleFunc("/readers", s.handleListReaders).Methods(http.MethodGet)
	api.HandleFunc("/readers/{id}", s.handleGetReader).Methods(http.MethodGet)
	api.HandleFunc("/readers/{id}", s.handleUpdateReader).Methods(http.MethodPut)
	api.HandleFunc("/readers/{id}", s.handleDeleteReader).Methods(http.MethodDelete)

	api.HandleFunc("/circulation/borrow", s.handleBorrow).Methods(http.MethodPost)
	api.HandleFunc("/circulation/return", s.handleReturn).Methods(http.MethodPost)
	api.HandleFunc("/circulation/{readerId}", s.handleActiveLoans).Methods(http.MethodGet)

	return r
}

// instrument applies the request id, logging and metrics middleware to
// handlers served outside route matching.
func (s *Server) instrument(h http.Handler) http.Handler {
	return requestIDMiddleware(s.loggingMiddleware(metricsMiddleware(h)))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// Check database connection
	if err := s.database.Ping(); err != nil {
		s.log.Error("Database health check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unhealthy: database connection failed"))
		return
	}

	// Check RabbitMQ connection
	if !s.publisher.IsHealthy() {
		s.log.Error("RabbitMQ health check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unhealthy: rabbitmq connection failed"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("healthy"))
}

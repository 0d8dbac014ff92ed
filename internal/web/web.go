package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/Joseda-hg/lazytodo/internal/api"
	"github.com/Joseda-hg/lazytodo/internal/chat"
	"github.com/Joseda-hg/lazytodo/internal/events"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/session"
	"github.com/Joseda-hg/lazytodo/internal/taskview"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type Authenticator interface {
	Signin(ctx context.Context, req api.SigninRequest) (api.AuthResponse, error)
}

type Publisher interface {
	Publish(topic string)
}

type Options struct {
	AllowedOrigins []string
	Publisher      Publisher
	Logger         *log.Logger
}

// Server is the local browser dashboard. It shares the session store with
// the terminal UI but keeps its own task view and chat transcript.
type Server struct {
	sessions *session.Manager
	auth     Authenticator
	tasks    *taskview.ViewModel
	chat     *chat.Panel
	opts     Options
	logger   *log.Logger
	markdown goldmark.Markdown
	router   *gin.Engine

	// viewMu guards Apply through Snapshot on tasks.
	viewMu sync.Mutex
}

type taskPage struct {
	Snapshot  taskview.Snapshot
	Active    []model.Task
	Completed []model.Task
	Tags      []tagOption
	Sorts     []model.SortOption
	Statuses  []model.Status
	Priority  []model.Priority
	Query     string
	Notice    string
}

type tagOption struct {
	Tag      model.Tag
	Selected bool
}

type chatPage struct {
	Messages       []model.ChatMessage
	ConversationID string
	Conversations  []model.Conversation
}

func NewServer(sessions *session.Manager, auth Authenticator, tasks *taskview.ViewModel, panel *chat.Panel, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		sessions: sessions,
		auth:     auth,
		tasks:    tasks,
		chat:     panel,
		opts:     opts,
		logger:   logger,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}

	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	if len(opts.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  opts.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Length", "Content-Type"},
			MaxAge:        12 * time.Hour,
		}))
	}
	router.SetHTMLTemplate(template.Must(template.New("").Funcs(template.FuncMap{
		"markdown": s.renderMarkdown,
		"assistant": func(role model.ChatRole) bool {
			return role == model.RoleAssistant
		},
		"dict": dict,
	}).ParseFS(templateFS, "templates/*.tmpl")))

	router.GET("/", s.handleIndex)
	router.GET("/signin", s.handleSignInForm)
	router.POST("/signin", s.handleSignIn)
	router.POST("/signout", s.handleSignOut)

	protected := router.Group("/", s.requireSession)
	{
		protected.GET("/tasks", s.handleTasks)
		protected.POST("/tasks/:id/toggle", s.handleToggle)
		protected.POST("/tasks/:id/delete", s.handleDelete)
		protected.GET("/chat", s.handleChat)
		protected.POST("/chat", s.handleChatSend)
		protected.POST("/chat/new", s.handleChatReset)
		protected.GET("/api/view", s.handleAPIView)
		protected.POST("/api/refresh", s.handleAPIRefresh)
	}

	s.router = router
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// requireSession applies the route guard to the request's session cookie
// and then checks that the stored token is still usable.
func (s *Server) requireSession(c *gin.Context) {
	ctx := c.Request.Context()
	presented := sessionCookie(c)
	if redirect, ok := s.sessions.Guard(ctx, c.Request.URL.RequestURI(), presented); !ok && c.Request.Method == http.MethodGet {
		c.Redirect(http.StatusFound, redirect)
		c.Abort()
		return
	}
	if !s.sessions.Authorized(ctx, presented) {
		s.signInRequired(c)
		return
	}
	if _, err := s.sessions.CurrentUserID(ctx); err != nil {
		s.signInRequired(c)
		return
	}
	c.Next()
}

func (s *Server) signInRequired(c *gin.Context) {
	path := c.Request.URL.RequestURI()
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": taskview.Message(session.ErrNoSession)})
		return
	}
	if c.Request.Method != http.MethodGet {
		path = session.RouteTasks
	}
	c.Redirect(http.StatusFound, session.SignInRedirect(path))
	c.Abort()
}

func sessionCookie(c *gin.Context) string {
	value, err := c.Cookie(session.CookieName)
	if err != nil {
		return ""
	}
	return value
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Redirect(http.StatusFound, s.sessions.Landing(c.Request.Context(), sessionCookie(c)))
}

func (s *Server) handleSignInForm(c *gin.Context) {
	redirect := safeRedirect(c.Query("redirect"))
	if s.sessions.Landing(c.Request.Context(), sessionCookie(c)) == session.RouteTasks {
		c.Redirect(http.StatusFound, redirect)
		return
	}
	c.HTML(http.StatusOK, "signin.tmpl", gin.H{"Redirect": redirect})
}

func (s *Server) handleSignIn(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	redirect := safeRedirect(c.PostForm("redirect"))

	render := func(status int, message string) {
		c.HTML(status, "signin.tmpl", gin.H{"Redirect": redirect, "Email": email, "Error": message})
	}
	if email == "" || password == "" {
		render(http.StatusBadRequest, "Email and password are required.")
		return
	}

	resp, err := s.auth.Signin(c.Request.Context(), api.SigninRequest{Email: email, Password: password})
	if err != nil {
		status := http.StatusBadGateway
		if kind := api.KindOf(err); kind == api.KindUnauthorized || kind == api.KindValidation {
			status = http.StatusUnauthorized
		}
		render(status, signInMessage(err))
		return
	}
	if err := s.sessions.Store(c.Request.Context(), resp.Token); err != nil {
		s.logger.Printf("web: store session: %v", err)
		render(http.StatusInternalServerError, "Could not save the session.")
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(session.CookieName, resp.Token, int(session.CookieTTL.Seconds()), "/", "", false, true)
	s.publish()
	c.Redirect(http.StatusFound, redirect)
}

// handleSignOut drops the browser cookie. The shared session is only cleared
// when the request proves it holds it.
func (s *Server) handleSignOut(c *gin.Context) {
	ctx := c.Request.Context()
	if s.sessions.Authorized(ctx, sessionCookie(c)) {
		if err := s.sessions.Clear(ctx); err != nil {
			s.logger.Printf("web: clear session: %v", err)
		}
		if s.chat != nil {
			s.chat.Reset()
		}
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(session.CookieName, "", -1, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, session.RouteSignIn)
}

func (s *Server) handleTasks(c *gin.Context) {
	filter, sort, err := filterFromQuery(c.Request.URL.Query())
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.loadView(c.Request.Context(), filter, sort)
	if err != nil && taskview.AuthRequired(err) {
		s.signInRequired(c)
		return
	}
	active, completed := taskview.Split(snap.Tasks)
	tags := make([]tagOption, 0, len(snap.Tags))
	for _, tag := range snap.Tags {
		tags = append(tags, tagOption{Tag: tag, Selected: snap.Filter.HasTag(tag.ID)})
	}

	c.HTML(http.StatusOK, "tasks.tmpl", taskPage{
		Snapshot:  snap,
		Active:    active,
		Completed: completed,
		Tags:      tags,
		Sorts:     model.SortOptions,
		Statuses:  []model.Status{model.StatusAll, model.StatusPending, model.StatusCompleted},
		Priority:  []model.Priority{model.PriorityAll, model.PriorityHigh, model.PriorityMedium, model.PriorityLow},
		Query:     c.Request.URL.RawQuery,
		Notice:    c.Query("notice"),
	})
}

// loadView applies filter and sort and returns the snapshot they produced.
func (s *Server) loadView(ctx context.Context, filter model.Filter, sort model.Sort) (taskview.Snapshot, error) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	if err := s.tasks.Apply(ctx, filter, sort); err != nil && taskview.AuthRequired(err) {
		return taskview.Snapshot{}, err
	}
	if _, err := s.tasks.LoadTags(ctx); err != nil {
		s.logger.Printf("web: load tags: %v", err)
	}
	return s.tasks.Snapshot(), nil
}

func (s *Server) handleToggle(c *gin.Context) {
	_, err := s.tasks.Toggle(c.Request.Context(), c.Param("id"))
	s.afterMutation(c, err)
}

func (s *Server) handleDelete(c *gin.Context) {
	err := s.tasks.Delete(c.Request.Context(), c.Param("id"))
	s.afterMutation(c, err)
}

// afterMutation sends the browser back to the list it came from, carrying
// the error text when the mutation failed.
func (s *Server) afterMutation(c *gin.Context, err error) {
	if err != nil && taskview.AuthRequired(err) {
		s.signInRequired(c)
		return
	}

	values, _ := url.ParseQuery(c.PostForm("return"))
	values.Del("notice")
	if err != nil {
		values.Set("notice", taskview.Message(err))
	}
	target := session.RouteTasks
	if encoded := values.Encode(); encoded != "" {
		target += "?" + encoded
	}
	c.Redirect(http.StatusSeeOther, target)
}

func (s *Server) handleChat(c *gin.Context) {
	page := chatPage{
		Messages:       s.chat.Transcript(),
		ConversationID: s.chat.ConversationID(),
	}
	conversations, err := s.chat.Conversations(c.Request.Context())
	if err != nil {
		s.logger.Printf("web: list conversations: %v", err)
	}
	page.Conversations = conversations

	if resume := c.Query("conversation"); resume != "" && resume != page.ConversationID {
		if err := s.chat.Resume(c.Request.Context(), resume); err != nil {
			c.String(http.StatusNotFound, taskview.Message(err))
			return
		}
		page.Messages = s.chat.Transcript()
		page.ConversationID = resume
	}
	c.HTML(http.StatusOK, "chat.tmpl", page)
}

func (s *Server) handleChatSend(c *gin.Context) {
	_, err := s.chat.Send(c.Request.Context(), c.PostForm("message"))
	if err != nil && taskview.AuthRequired(err) {
		s.signInRequired(c)
		return
	}
	if errors.Is(err, chat.ErrBusy) {
		c.String(http.StatusConflict, err.Error())
		return
	}
	c.Redirect(http.StatusSeeOther, "/chat")
}

func (s *Server) handleChatReset(c *gin.Context) {
	s.chat.Reset()
	c.Redirect(http.StatusSeeOther, "/chat")
}

func (s *Server) handleAPIView(c *gin.Context) {
	snap := s.tasks.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"filter":  snap.Filter,
		"sort":    snap.Sort,
		"tasks":   snap.Tasks,
		"total":   snap.Total,
		"loaded":  snap.Loaded,
		"loading": snap.Loading,
		"error":   snap.Error,
		"stats": gin.H{
			"total":     snap.Stats.Total,
			"completed": snap.Stats.Completed,
			"active":    snap.Stats.Active,
			"progress":  snap.Stats.Progress,
		},
	})
}

func (s *Server) handleAPIRefresh(c *gin.Context) {
	s.publish()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) publish() {
	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(events.TopicTasksUpdated)
	}
}

func (s *Server) renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func filterFromQuery(query url.Values) (model.Filter, model.Sort, error) {
	status, err := model.ParseStatus(query.Get("status"))
	if err != nil {
		return model.Filter{}, "", err
	}
	priority, err := model.ParsePriority(query.Get("priority"))
	if err != nil {
		return model.Filter{}, "", err
	}
	sort, err := model.ParseSort(query.Get("sort"))
	if err != nil {
		return model.Filter{}, "", err
	}

	var tags []string
	for _, value := range query["tag"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}

	filter := model.Filter{
		Search:   strings.TrimSpace(query.Get("q")),
		Status:   status,
		Priority: priority,
		TagIDs:   tags,
	}
	return filter.Normalize(), sort, nil
}

func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("dict: odd number of arguments")
	}
	values := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, errors.New("dict: keys must be strings")
		}
		values[key] = pairs[i+1]
	}
	return values, nil
}

// safeRedirect only follows paths on this host. Browsers read a backslash
// as a slash.
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.ContainsRune(target, '\\') {
		return session.RouteTasks
	}
	if strings.IndexFunc(target, unicode.IsControl) >= 0 {
		return session.RouteTasks
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" || strings.HasPrefix(parsed.Path, session.RouteSignIn) {
		return session.RouteTasks
	}
	return target
}

func signInMessage(err error) string {
	switch api.KindOf(err) {
	case api.KindUnauthorized:
		return "Invalid email or password."
	case api.KindValidation:
		return taskview.Message(err)
	}
	if api.IsUnreachable(err) {
		return "Cannot reach server. Check that the backend is running."
	}
	return taskview.Message(err)
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"edu-rag-go/internal/model"
	"edu-rag-go/internal/service"
	"edu-rag-go/internal/vectorindex"
	"edu-rag-go/pkg/errs"
	"edu-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockIngest struct{ mock.Mock }

func (m *mockIngest) Upload(ctx context.Context, id model.Identity, in service.UploadInput) (*model.Document, error) {
	args := m.Called(ctx, id, in)
	doc, _ := args.Get(0).(*model.Document)
	return doc, args.Error(1)
}

func (m *mockIngest) ListDocuments(ctx context.Context, id model.Identity, unitID uint) ([]model.Document, error) {
	args := m.Called(ctx, id, unitID)
	docs, _ := args.Get(0).([]model.Document)
	return docs, args.Error(1)
}

func (m *mockIngest) GetProcessingState(ctx context.Context, id model.Identity, unitID uint) (model.ProcessingState, error) {
	args := m.Called(ctx, id, unitID)
	return args.Get(0).(model.ProcessingState), args.Error(1)
}

func (m *mockIngest) ProcessUnit(ctx context.Context, id model.Identity, unitID uint) (model.ProcessingState, error) {
	args := m.Called(ctx, id, unitID)
	return args.Get(0).(model.ProcessingState), args.Error(1)
}

type mockSummaries struct{ mock.Mock }

func (m *mockSummaries) SummarizeTopic(ctx context.Context, id model.Identity, topicID uint) (*model.TopicSummary, error) {
	args := m.Called(ctx, id, topicID)
	s, _ := args.Get(0).(*model.TopicSummary)
	return s, args.Error(1)
}

func (m *mockSummaries) SummarizeUnit(ctx context.Context, id model.Identity, unitID uint) (*model.UnitSummary, error) {
	args := m.Called(ctx, id, unitID)
	s, _ := args.Get(0).(*model.UnitSummary)
	return s, args.Error(1)
}

func (m *mockSummaries) GetTopicSummary(ctx context.Context, id model.Identity, topicID uint) (*model.TopicSummary, error) {
	args := m.Called(ctx, id, topicID)
	s, _ := args.Get(0).(*model.TopicSummary)
	return s, args.Error(1)
}

func (m *mockSummaries) GetUnitSummary(ctx context.Context, id model.Identity, unitID uint) (*model.UnitSummary, error) {
	args := m.Called(ctx, id, unitID)
	s, _ := args.Get(0).(*model.UnitSummary)
	return s, args.Error(1)
}

type mockChat struct{ mock.Mock }

func (m *mockChat) Chat(ctx context.Context, id model.Identity, req model.ChatRequest) (model.ChatResult, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(model.ChatResult), args.Error(1)
}

type stubHealth map[string]string

func (s stubHealth) Check(context.Context) map[string]string { return s }

type stubIndexes struct {
	counts map[string]int
	err    error
}

func (s stubIndexes) Rebuild(context.Context, string) (map[string]int, error) { return s.counts, s.err }

func (s stubIndexes) Stats() map[string]vectorindex.Stats {
	return map[string]vectorindex.Stats{service.IndexPassages: {Live: 3}}
}

type harness struct {
	router    *gin.Engine
	jwt       *token.JWTManager
	ingest    *mockIngest
	summaries *mockSummaries
	chat      *mockChat
	userTok   string
	adminTok  string
}

var lecturer = model.Identity{UserID: 7, Username: "lecturer", Role: "USER"}

func newHarness(t *testing.T, health stubHealth) *harness {
	h := &harness{
		jwt:       token.NewJWTManager("secret", 1),
		ingest:    &mockIngest{},
		summaries: &mockSummaries{},
		chat:      &mockChat{},
	}
	var err error
	h.userTok, err = h.jwt.GenerateToken(7, "lecturer", "USER")
	require.NoError(t, err)
	h.adminTok, err = h.jwt.GenerateToken(1, "root", "ADMIN")
	require.NoError(t, err)

	h.router = gin.New()
	RegisterRoutes(h.router, Handlers{
		Documents: NewDocumentHandler(h.ingest),
		Summaries: NewSummaryHandler(h.summaries),
		Chat:      NewChatHandler(h.chat, h.jwt),
		Admin:     NewAdminHandler(health, stubIndexes{counts: map[string]int{"passages": 2}}),
	}, h.jwt)
	return h
}

func (h *harness) do(method, path, tok string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestStatusOf(t *testing.T) {
	cases := map[errs.Kind]int{
		errs.KindUnsupportedFormat:   http.StatusBadRequest,
		errs.KindInvalidInput:        http.StatusBadRequest,
		errs.KindForbidden:           http.StatusForbidden,
		errs.KindNotFound:            http.StatusNotFound,
		errs.KindConcurrencyConflict: http.StatusConflict,
		errs.KindPrecondition:        http.StatusUnprocessableEntity,
		errs.KindEmbedding:           http.StatusBadGateway,
		errs.KindSummarization:       http.StatusBadGateway,
		errs.KindGeneration:          http.StatusBadGateway,
		errs.KindIndexCorruption:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusOf(errs.Newf(kind, "op", "x")), kind)
	}
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func multipartBody(t *testing.T, fileName, content, mediaKind string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	if mediaKind != "" {
		require.NoError(t, mw.WriteField("media_kind", mediaKind))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	h := newHarness(t, stubHealth{})
	h.ingest.On("Upload", mock.Anything, lecturer, service.UploadInput{
		UnitID: 100, TopicID: 10, FileName: "notes.md", MediaKind: "markdown", Data: []byte("# Cells"),
	}).Return(&model.Document{ID: 1, FileName: "notes.md", Status: model.DocumentPending}, nil).Once()

	body, ct := multipartBody(t, "notes.md", "# Cells", "markdown")
	w := h.do(http.MethodPost, "/api/v1/units/100/topics/10/documents", h.userTok, body, ct)

	assert.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	assert.Equal(t, http.StatusCreated, env.Code)
	assert.Contains(t, string(env.Data), `"fileName":"notes.md"`)
	h.ingest.AssertExpectations(t)
}

func TestUpload_Errors(t *testing.T) {
	h := newHarness(t, stubHealth{})
	h.ingest.On("Upload", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errs.Newf(errs.KindUnsupportedFormat, "ingest.upload", "不支持的文件类型 \"pptx\""))

	body, ct := multipartBody(t, "slides.pptx", "x", "")
	w := h.do(http.MethodPost, "/api/v1/units/100/topics/10/documents", h.userTok, body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Message, "pptx")

	w = h.do(http.MethodPost, "/api/v1/units/abc/topics/10/documents", h.userTok, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/units/100/topics/10/documents", h.userTok, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/units/100/topics/10/documents", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProcessingStateAndProcess(t *testing.T) {
	h := newHarness(t, stubHealth{})
	h.ingest.On("GetProcessingState", mock.Anything, lecturer, uint(100)).
		Return(model.ProcessingState{UnitID: 100, Status: model.StatusProcessing, HasFiles: true}, nil)
	h.ingest.On("ProcessUnit", mock.Anything, lecturer, uint(100)).
		Return(model.ProcessingState{UnitID: 100, Status: model.StatusProcessing}, errs.Newf(errs.KindConcurrencyConflict, "ingest.process", "单元 100 正在处理中"))

	w := h.do(http.MethodGet, "/api/v1/units/100/processing-state", h.userTok, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"status":"processing"`)

	w = h.do(http.MethodPost, "/api/v1/units/100/process", h.userTok, nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, string(decode(t, w).Data), string(errs.KindConcurrencyConflict))
}

func TestSummaryRoutes(t *testing.T) {
	h := newHarness(t, stubHealth{})
	h.summaries.On("GetTopicSummary", mock.Anything, lecturer, uint(10)).
		Return(nil, errs.Newf(errs.KindNotFound, "summary.get_topic", "主题 10 还没有摘要"))
	h.summaries.On("SummarizeUnit", mock.Anything, lecturer, uint(100)).
		Return(nil, errs.Newf(errs.KindPrecondition, "pipeline.unit_summary", "主题 11 还没有摘要"))
	h.summaries.On("SummarizeTopic", mock.Anything, lecturer, uint(10)).
		Return(&model.TopicSummary{ID: 1, TopicID: 10, Text: "membranes"}, nil)
	h.summaries.On("GetUnitSummary", mock.Anything, lecturer, uint(100)).
		Return(nil, errs.Newf(errs.KindSummarization, "summarizer.map", "upstream failed"))

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/v1/topics/10/summary", h.userTok, nil, "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(http.MethodPost, "/api/v1/units/100/summarize", h.userTok, nil, "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/topics/10/summarize", h.userTok, nil, "").Code)
	assert.Equal(t, http.StatusBadGateway, h.do(http.MethodGet, "/api/v1/units/100/summary", h.userTok, nil, "").Code)
}

func TestChat(t *testing.T) {
	h := newHarness(t, stubHealth{})
	unit := uint(100)
	h.chat.On("Chat", mock.Anything, lecturer, model.ChatRequest{Query: "what is a cell", SubjectID: 1, UnitID: &unit}).
		Return(model.ChatResult{Answer: "a cell is...", Intent: model.IntentExplainTopic, Sources: []model.Source{}}, nil).Once()

	w := h.do(http.MethodPost, "/api/v1/chat", h.userTok,
		bytes.NewBufferString(`{"query":"what is a cell","subject_id":1,"unit_id":100}`), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"intent":"explain_topic"`)

	w = h.do(http.MethodPost, "/api/v1/chat", h.userTok, bytes.NewBufferString(`{"subject_id":1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	h.chat.AssertExpectations(t)
}

func TestChat_InternalErrorHidesDetails(t *testing.T) {
	h := newHarness(t, stubHealth{})
	h.chat.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Return(model.ChatResult{}, errors.New("dial tcp 10.0.0.5:3306: connection refused"))

	w := h.do(http.MethodPost, "/api/v1/chat", h.userTok,
		bytes.NewBufferString(`{"query":"q","subject_id":1}`), "application/json")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestHealthAndAdmin(t *testing.T) {
	h := newHarness(t, stubHealth{"mysql": "ok", "redis": "ok"})
	w := h.do(http.MethodGet, "/api/v1/health", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"live":3`)

	down := newHarness(t, stubHealth{"mysql": "ok", "redis": "connection refused"})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(http.MethodGet, "/api/v1/health", "", nil, "").Code)

	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/v1/admin/index/rebuild", h.userTok, nil, "").Code)
	w = h.do(http.MethodPost, "/api/v1/admin/index/rebuild?which=passages", h.adminTok, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"passages":2}`, string(decode(t, w).Data))
}

func TestWebsocketChat(t *testing.T) {
	h := newHarness(t, stubHealth{})
	h.chat.On("Chat", mock.Anything, lecturer, model.ChatRequest{Query: "q", SubjectID: 1}).
		Return(model.ChatResult{Answer: "a", Intent: model.IntentRevise, Sources: []model.Source{}}, nil)
	h.chat.On("Chat", mock.Anything, lecturer, model.ChatRequest{Query: "q", SubjectID: 2}).
		Return(model.ChatResult{}, errs.Newf(errs.KindForbidden, "chat", "用户 7 无权访问科目 2"))

	srv := httptest.NewServer(h.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/" + h.userTok
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg wsMessage
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"query":"q","subject_id":1}`)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "result", msg.Type)
	require.NotNil(t, msg.Data)
	assert.Equal(t, "a", msg.Data.Answer)

	msg = wsMessage{}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"query":"q","subject_id":2}`)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, http.StatusForbidden, msg.Code)

	msg = wsMessage{}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, http.StatusBadRequest, msg.Code)
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	h := newHarness(t, stubHealth{})
	w := h.do(http.MethodGet, "/chat/garbage", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

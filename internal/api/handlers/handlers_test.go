package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/bankrecon/internal/api/dto"
	"github.com/eshaffer321/bankrecon/internal/api/handlers"
	"github.com/eshaffer321/bankrecon/internal/application/reconcile"
	"github.com/eshaffer321/bankrecon/internal/domain/ledger"
	"github.com/eshaffer321/bankrecon/internal/domain/statement"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const sampleOFX = `OFXHEADER:100
DATA:OFXSGML

<OFX>
<BANKACCTFROM>
<BANKID>0341
<ACCTID>98765-0
</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240105
<TRNAMT>1500.00
<FITID>F001
<MEMO>PIX RECEBIDO
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240106
<TRNAMT>-89.90
<FITID>F002
<MEMO>ENERGIA
</STMTTRN>
</BANKTRANLIST>
</OFX>
`

type testEnv struct {
	router *gin.Engine
	repo   *storage.MockRepository
	svc    *reconcile.Service
}

func newTestEnv(t *testing.T, maxUploadMB int) *testEnv {
	t.Helper()
	repo := storage.NewMockRepository()

	seq := 0
	opts := reconcile.DefaultOptions()
	opts.Now = func() time.Time { return time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC) }
	opts.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	svc := reconcile.NewService(repo, opts, nil)

	statements := handlers.NewStatementsHandler(svc, nil, maxUploadMB)
	rec := handlers.NewReconcileHandler(svc, nil)
	led := handlers.NewLedgerHandler(svc, nil)

	r := gin.New()
	r.GET("/health", handlers.NewHealthHandler().Get)
	r.POST("/api/statements", statements.Upload)
	r.GET("/api/statements", statements.List)
	r.GET("/api/statements/:id", statements.Get)
	r.POST("/api/statements/:id/reconcile", rec.Run)
	r.GET("/api/statements/:id/suggestions", rec.Suggestions)
	r.POST("/api/bank-transactions/:id/confirm", rec.Confirm)
	r.POST("/api/bank-transactions/:id/ignore", rec.Ignore)
	r.POST("/api/ledger", led.Add)
	r.GET("/api/ledger", led.List)

	return &testEnv{router: r, repo: repo, svc: svc}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(handlers.UploadField, name)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/statements", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return e.do(req)
}

func (e *testEnv) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, 1)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[dto.HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestStatementsHandler_Upload(t *testing.T) {
	t.Run("imports a statement", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t, 1)

		// Act
		rec := env.upload(t, "jan.ofx", sampleOFX)

		// Assert
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decode[dto.ImportResponse](t, rec)
		assert.False(t, resp.Duplicate)
		assert.Equal(t, "98765-0", resp.Statement.AccountID)
		require.Len(t, resp.Transactions, 2)
		assert.Equal(t, statement.Credit, resp.Transactions[0].Kind)
		assert.Equal(t, "1500.00", resp.Transactions[0].Amount.StringFixed(2))
		assert.Equal(t, statement.Pending, resp.Transactions[1].Status)
	})

	t.Run("repeated upload returns the earlier import", func(t *testing.T) {
		env := newTestEnv(t, 1)
		first := decode[dto.ImportResponse](t, env.upload(t, "jan.ofx", sampleOFX))

		rec := env.upload(t, "jan-again.ofx", sampleOFX)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[dto.ImportResponse](t, rec)
		assert.True(t, resp.Duplicate)
		assert.Equal(t, first.Statement.ID, resp.Statement.ID)
		assert.Equal(t, 1, env.repo.SaveStatementCalls)
	})

	t.Run("missing file field", func(t *testing.T) {
		env := newTestEnv(t, 1)
		req := httptest.NewRequest(http.MethodPost, "/api/statements", strings.NewReader("x"))
		req.Header.Set("Content-Type", "text/plain")

		rec := env.do(req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decode[dto.APIError](t, rec).Code)
	})

	t.Run("rejects oversized upload", func(t *testing.T) {
		env := newTestEnv(t, 1)
		big := sampleOFX + strings.Repeat("<MEMO>padding\n", 100_000)

		rec := env.upload(t, "big.ofx", big)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, dto.ErrCodeTooLarge, decode[dto.APIError](t, rec).Code)
		assert.Zero(t, env.repo.SaveStatementCalls)
	})

	t.Run("empty statement is a validation error", func(t *testing.T) {
		env := newTestEnv(t, 1)

		rec := env.upload(t, "notes.txt", "hello")

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode[dto.APIError](t, rec).Code)
	})

	t.Run("storage failure is an internal error", func(t *testing.T) {
		env := newTestEnv(t, 1)
		env.repo.SaveStatementErr = errors.New("disk full")

		rec := env.upload(t, "jan.ofx", sampleOFX)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := decode[dto.APIError](t, rec)
		assert.Equal(t, dto.ErrCodeInternalError, resp.Code)
		assert.NotContains(t, resp.Message, "disk full")
	})
}

func TestStatementsHandler_ListAndGet(t *testing.T) {
	env := newTestEnv(t, 1)
	imported := decode[dto.ImportResponse](t, env.upload(t, "jan.ofx", sampleOFX))

	t.Run("lists statements", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/statements", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[dto.StatementListResponse](t, rec)
		require.Len(t, resp.Statements, 1)
		assert.Equal(t, imported.Statement.ID, resp.Statements[0].ID)
		assert.Equal(t, 50, resp.Limit)
	})

	t.Run("filters by account", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/statements?account_id=other", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[dto.StatementListResponse](t, rec)
		assert.NotNil(t, resp.Statements)
		assert.Empty(t, resp.Statements)
	})

	t.Run("rejects invalid limit", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/statements?limit=-1", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("gets a statement with transactions", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/statements/"+imported.Statement.ID, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[dto.StatementResponse](t, rec)
		assert.Equal(t, imported.Statement.ID, resp.Statement.ID)
		assert.Len(t, resp.Transactions, 2)
	})

	t.Run("unknown statement", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/statements/nope", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		resp := decode[dto.APIError](t, rec)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Code)
		assert.Equal(t, "statement not found", resp.Message)
	})
}

func TestLedgerHandler_Add(t *testing.T) {
	t.Run("stores a batch", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t, 1)
		body := `{"transactions":[
			{"id":"INV-1","kind":"INCOME","amount":"1500.00","description":"<b>Invoice</b> 1","due_date":"2024-01-05"},
			{"kind":"expense","amount":89.9,"paid_date":"2024-01-06"}
		]}`

		// Act
		rec := env.postJSON("/api/ledger", body)

		// Assert
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decode[dto.AddLedgerResponse](t, rec)
		assert.Equal(t, 2, resp.Saved)
		assert.Equal(t, "INV-1", resp.Transactions[0].ID)
		assert.Equal(t, "Invoice 1", resp.Transactions[0].Description)
		assert.Equal(t, ledger.Expense, resp.Transactions[1].Kind)
		assert.Equal(t, "89.90", resp.Transactions[1].Amount.StringFixed(2))
		assert.NotEmpty(t, resp.Transactions[1].ID)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		env := newTestEnv(t, 1)

		rec := env.postJSON("/api/ledger", `{"transactions":[]}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects bad date format", func(t *testing.T) {
		env := newTestEnv(t, 1)

		rec := env.postJSON("/api/ledger", `{"transactions":[{"kind":"INCOME","amount":"10","due_date":"05/01/2024"}]}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid entry rejects the whole batch", func(t *testing.T) {
		env := newTestEnv(t, 1)
		body := `{"transactions":[
			{"id":"OK-1","kind":"INCOME","amount":"10","due_date":"2024-01-05"},
			{"id":"BAD-1","kind":"EXPENSE","amount":"-3","due_date":"2024-01-05"}
		]}`

		rec := env.postJSON("/api/ledger", body)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decode[dto.APIError](t, rec)
		assert.Equal(t, dto.ErrCodeValidation, resp.Code)
		assert.Contains(t, resp.Message, "BAD-1")

		listed, err := env.repo.ListLedgerTransactions(t.Context(), storage.LedgerFilter{})
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("entry without any date", func(t *testing.T) {
		env := newTestEnv(t, 1)

		rec := env.postJSON("/api/ledger", `{"transactions":[{"kind":"INCOME","amount":"10"}]}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestLedgerHandler_List(t *testing.T) {
	env := newTestEnv(t, 1)
	rec := env.postJSON("/api/ledger", `{"transactions":[
		{"id":"INV-1","kind":"INCOME","amount":"1500.00","due_date":"2024-01-05"},
		{"id":"BILL-1","kind":"EXPENSE","amount":"89.90","due_date":"2024-01-06"}
	]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("lists all", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/ledger", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[dto.LedgerListResponse](t, rec)
		assert.Len(t, resp.Transactions, 2)
	})

	t.Run("filters by kind", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/ledger?kind=expense", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[dto.LedgerListResponse](t, rec)
		require.Len(t, resp.Transactions, 1)
		assert.Equal(t, "BILL-1", resp.Transactions[0].ID)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/ledger?kind=TRANSFER", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestReconcileHandler(t *testing.T) {
	setup := func(t *testing.T) (*testEnv, dto.ImportResponse) {
		t.Helper()
		env := newTestEnv(t, 1)
		imported := decode[dto.ImportResponse](t, env.upload(t, "jan.ofx", sampleOFX))
		rec := env.postJSON("/api/ledger", `{"transactions":[
			{"id":"INV-1","kind":"INCOME","amount":"1500.00","due_date":"2024-01-05"},
			{"id":"BILL-1","kind":"EXPENSE","amount":"89.90","due_date":"2024-01-09"}
		]}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		return env, imported
	}

	t.Run("runs and stores suggestions", func(t *testing.T) {
		// Arrange
		env, imported := setup(t)
		path := "/api/statements/" + imported.Statement.ID

		// Act
		rec := env.do(httptest.NewRequest(http.MethodPost, path+"/reconcile", nil))

		// Assert
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		run := decode[dto.RunResponse](t, rec)
		require.Len(t, run.Suggestions, 2)
		require.NotNil(t, run.Suggestions[0].Suggested)
		assert.Equal(t, "INV-1", run.Suggestions[0].Suggested.ID)
		assert.Equal(t, 100, run.Suggestions[0].Score)

		// 3 days apart: 60 + 15 stays below the threshold
		assert.Nil(t, run.Suggestions[1].Suggested)
		assert.Equal(t, 75, run.Suggestions[1].Score)
		assert.Equal(t, 1, run.Run.SuggestedCount)

		latest := env.do(httptest.NewRequest(http.MethodGet, path+"/suggestions", nil))
		require.Equal(t, http.StatusOK, latest.Code)
		stored := decode[dto.RunResponse](t, latest)
		assert.Equal(t, run.Run.ID, stored.Run.ID)
		assert.Len(t, stored.Suggestions, 2)
	})

	t.Run("unknown statement", func(t *testing.T) {
		env, _ := setup(t)

		rec := env.do(httptest.NewRequest(http.MethodPost, "/api/statements/nope/reconcile", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no run yet", func(t *testing.T) {
		env, imported := setup(t)

		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/statements/"+imported.Statement.ID+"/suggestions", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "reconciliation run not found", decode[dto.APIError](t, rec).Message)
	})

	t.Run("confirm then confirm again", func(t *testing.T) {
		env, imported := setup(t)
		path := "/api/bank-transactions/" + imported.Transactions[0].ID + "/confirm"

		rec := env.postJSON(path, `{"ledger_transaction_id":"INV-1"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		confirmed := decode[storage.BankTransactionRecord](t, rec)
		assert.Equal(t, statement.Matched, confirmed.Status)
		assert.Equal(t, "INV-1", confirmed.MatchedLedgerID)

		again := env.postJSON(path, `{"ledger_transaction_id":"INV-1"}`)
		assert.Equal(t, http.StatusConflict, again.Code)
		assert.Equal(t, dto.ErrCodeConflict, decode[dto.APIError](t, again).Code)
	})

	t.Run("re-posting a matched ledger entry conflicts", func(t *testing.T) {
		env, imported := setup(t)
		path := "/api/bank-transactions/" + imported.Transactions[0].ID + "/confirm"
		require.Equal(t, http.StatusOK, env.postJSON(path, `{"ledger_transaction_id":"INV-1"}`).Code)

		rec := env.postJSON("/api/ledger", `{"transactions":[
			{"id":"INV-1","kind":"EXPENSE","amount":"7.00","due_date":"2024-02-01"}
		]}`)

		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Equal(t, dto.ErrCodeConflict, decode[dto.APIError](t, rec).Code)

		listed := decode[dto.LedgerListResponse](t, env.do(httptest.NewRequest(http.MethodGet, "/api/ledger?kind=INCOME", nil)))
		require.Len(t, listed.Transactions, 1)
		assert.Equal(t, "1500.00", listed.Transactions[0].Amount.StringFixed(2))
		assert.Equal(t, imported.Transactions[0].ID, listed.Transactions[0].MatchedBankID)
	})

	t.Run("confirm with incompatible kind", func(t *testing.T) {
		env, imported := setup(t)

		rec := env.postJSON("/api/bank-transactions/"+imported.Transactions[0].ID+"/confirm",
			`{"ledger_transaction_id":"BILL-1"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("confirm requires a ledger id", func(t *testing.T) {
		env, imported := setup(t)

		rec := env.postJSON("/api/bank-transactions/"+imported.Transactions[0].ID+"/confirm", `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("confirm unknown ledger transaction", func(t *testing.T) {
		env, imported := setup(t)

		rec := env.postJSON("/api/bank-transactions/"+imported.Transactions[0].ID+"/confirm",
			`{"ledger_transaction_id":"NOPE"}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("ignore", func(t *testing.T) {
		env, imported := setup(t)
		path := "/api/bank-transactions/" + imported.Transactions[1].ID + "/ignore"

		rec := env.do(httptest.NewRequest(http.MethodPost, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, statement.Ignored, decode[storage.BankTransactionRecord](t, rec).Status)

		again := env.do(httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusConflict, again.Code)
	})

	t.Run("ignore unknown transaction", func(t *testing.T) {
		env, _ := setup(t)

		rec := env.do(httptest.NewRequest(http.MethodPost, "/api/bank-transactions/nope/ignore", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

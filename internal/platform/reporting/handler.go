package reporting

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/cohort/internal/domain/cohort"
	"github.com/ehr/cohort/internal/domain/period"
	"github.com/ehr/cohort/internal/domain/temporal"
	"github.com/ehr/cohort/internal/platform/auth"
	"github.com/ehr/cohort/internal/platform/query"
	"github.com/ehr/cohort/pkg/pagination"
)

// IndicatorReport holds one page of an indicator's members.
type IndicatorReport struct {
	IndicatorID   string             `json:"indicator_id"`
	IndicatorName string             `json:"indicator_name"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Period        period.Range       `json:"period"`
	Location      int64              `json:"location"`
	Count         int                `json:"count"`
	Members       []cohort.PatientID `json:"members"`
}

// FactRequest is the body of POST /facts/evaluate.
type FactRequest struct {
	Fact     string      `json:"fact"`
	Period   period.Spec `json:"period"`
	Location int64       `json:"location"`
}

type PatientFact struct {
	PatientID cohort.PatientID `json:"patient_id"`
	Fact      temporal.Fact    `json:"fact"`
}

type FactReport struct {
	FactID      string        `json:"fact_id"`
	FactName    string        `json:"fact_name"`
	GeneratedAt time.Time     `json:"generated_at"`
	Period      period.Range  `json:"period"`
	Location    int64         `json:"location"`
	Qualified   int           `json:"qualified"`
	Results     []PatientFact `json:"results"`
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	eval            *Evaluator
	defaultLocation int64
}

func NewHandler(eval *Evaluator, defaultLocation int64) *Handler {
	return &Handler{eval: eval, defaultLocation: defaultLocation}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAnalyst, auth.RoleViewer))
	reportGroup.GET("/indicators", h.ListIndicators)
	reportGroup.GET("/facts", h.ListFacts)
	reportGroup.GET("/periods/resolve", h.ResolvePeriod)
	reportGroup.GET("/indicators/:id/evaluate", h.EvaluateIndicator)
	reportGroup.POST("/facts/evaluate", h.EvaluateFact, auth.RequireRole(auth.RoleAnalyst))
}

func (h *Handler) ListIndicators(c echo.Context) error {
	return c.JSON(http.StatusOK, Indicators)
}

func (h *Handler) ListFacts(c echo.Context) error {
	return c.JSON(http.StatusOK, Facts)
}

func (h *Handler) ResolvePeriod(c echo.Context) error {
	spec, err := specFromQuery(c)
	if err != nil {
		return err
	}
	rng, err := spec.Resolve()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rng)
}

// EvaluateIndicator evaluates an indicator and returns a page of its members.
func (h *Handler) EvaluateIndicator(c echo.Context) error {
	ind := FindIndicator(c.Param("id"))
	if ind == nil {
		return echo.NewHTTPError(http.StatusNotFound, "indicator not found")
	}
	spec, err := specFromQuery(c)
	if err != nil {
		return err
	}
	location, err := h.location(c, c.QueryParam("location"))
	if err != nil {
		return err
	}
	rng, err := spec.Resolve()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	members, err := h.eval.EvaluateIndicator(c.Request().Context(), ind, spec, location)
	if err != nil {
		return evaluationError(c, err)
	}

	all := members.Members()
	pg := pagination.FromContext(c)
	report := IndicatorReport{
		IndicatorID:   ind.ID,
		IndicatorName: ind.Name,
		GeneratedAt:   time.Now().UTC(),
		Period:        rng,
		Location:      location,
		Count:         len(all),
		Members:       pagination.Page(all, pg),
	}

	q := c.Request().URL.Query()
	q.Del("limit")
	q.Del("offset")
	resp := pagination.NewResponse(report, len(all), pg.Limit, pg.Offset)
	resp.Links = pg.Links(c.Request().URL.Path, q.Encode(), len(all))
	return c.JSON(http.StatusOK, resp)
}

// EvaluateFact derives a temporal fact for the base cohort.
func (h *Handler) EvaluateFact(c echo.Context) error {
	var req FactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f := FindFact(req.Fact)
	if f == nil {
		return echo.NewHTTPError(http.StatusNotFound, "fact not found")
	}
	location, err := h.location(c, strconv.FormatInt(req.Location, 10))
	if err != nil {
		return err
	}
	rng, err := req.Period.Resolve()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	facts, err := h.eval.EvaluateFact(c.Request().Context(), f, req.Period, location)
	if err != nil {
		return evaluationError(c, err)
	}

	report := FactReport{
		FactID:      f.ID,
		FactName:    f.Name,
		GeneratedAt: time.Now().UTC(),
		Period:      rng,
		Location:    location,
		Results:     SortedFacts(facts),
	}
	for _, r := range report.Results {
		if r.Fact.Qualified {
			report.Qualified++
		}
	}
	return c.JSON(http.StatusOK, report)
}

// SortedFacts flattens facts into a list ordered by patient ID.
func SortedFacts(facts map[cohort.PatientID]temporal.Fact) []PatientFact {
	results := make([]PatientFact, 0, len(facts))
	for id, fact := range facts {
		results = append(results, PatientFact{PatientID: id, Fact: fact})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].PatientID < results[j].PatientID
	})
	return results
}

// location parses raw, falling back to the default location for "" and "0",
// and checks that the caller may see it.
func (h *Handler) location(c echo.Context, raw string) (int64, error) {
	location := h.defaultLocation
	if raw != "" && raw != "0" {
		l, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || l < 0 {
			return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid location")
		}
		location = l
	}
	if location == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "location is required")
	}
	if !auth.CanAccessLocation(c.Request().Context(), location) {
		return 0, echo.NewHTTPError(http.StatusForbidden, "location not permitted")
	}
	return location, nil
}

func specFromQuery(c echo.Context) (period.Spec, error) {
	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil || year < 1 {
		return period.Spec{}, echo.NewHTTPError(http.StatusBadRequest, "invalid year")
	}
	quarter, err := period.ParseQuarter(c.QueryParam("quarter"))
	if err != nil {
		return period.Spec{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	month, err := period.ParseMonth(c.QueryParam("month"))
	if err != nil {
		return period.Spec{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return period.Spec{Year: year, Quarter: quarter, Month: month}, nil
}

func evaluationError(c echo.Context, err error) error {
	var ce *query.ConstructionError
	if errors.As(err, &ce) {
		return echo.NewHTTPError(http.StatusBadRequest, ce.Error())
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("evaluation failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "evaluation failed")
}

// Package advisory предоставляет клиент сервиса оценки рыночной цены товара.
// Сервис отвечает свободным текстом, из которого извлекаются диапазон цен,
// краткий анализ и до трёх источников.
package advisory

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/comproum/internal/model"
)

// MaxSources ограничивает число источников в оценке.
const MaxSources = 3

// ErrNoInsight возвращается, если из ответа не удалось извлечь цены.
var ErrNoInsight = errors.New("advisory response has no price range")

// Source описывает источник, на который ссылается оценка.
type Source struct {
	Title string
	URI   string
}

// Insight содержит оценку рыночной цены. Цены в сентаво.
type Insight struct {
	MinPrice int64
	MaxPrice int64
	Analysis string
	Sources  []Source
}

// Client инкапсулирует HTTP-взаимодействие с сервисом оценки.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient создаёт клиент сервиса оценки. Пустой url отключает клиент.
func NewClient(url string) *Client {
	return &Client{
		url: strings.TrimSpace(url),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Enabled сообщает, настроен ли клиент.
func (c *Client) Enabled() bool {
	return c != nil && c.url != ""
}

type request struct {
	Product string `json:"product"`
}

type structuredResponse struct {
	Text    string `json:"text"`
	Sources []struct {
		Title string `json:"title"`
		URI   string `json:"uri"`
	} `json:"sources"`
}

// Estimate запрашивает оценку цены для товара.
func (c *Client) Estimate(ctx context.Context, product string) (*Insight, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("advisory client not configured")
	}

	product = strings.TrimSpace(product)
	if product == "" {
		return nil, fmt.Errorf("product name is required")
	}

	body, err := json.Marshal(request{Product: product})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var structured structuredResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") &&
		json.Unmarshal(raw, &structured) == nil {
		insight, err := Parse(structured.Text)
		if err != nil {
			return nil, err
		}
		for _, s := range structured.Sources {
			if len(insight.Sources) == MaxSources {
				break
			}
			if s.URI != "" {
				insight.Sources = append(insight.Sources, Source{Title: s.Title, URI: s.URI})
			}
		}
		return insight, nil
	}

	return Parse(string(raw))
}

var (
	minRe    = regexp.MustCompile(`(?i)^\s*(?:pre[cç]o[_ ]?)?m[ií]n(?:imo)?\s*[:=]\s*(.+)$`)
	maxRe    = regexp.MustCompile(`(?i)^\s*(?:pre[cç]o[_ ]?)?m[aá]x(?:imo)?\s*[:=]\s*(.+)$`)
	analRe   = regexp.MustCompile(`(?i)^\s*an[aá]lis[ei]s?\s*[:=]\s*(.*)$`)
	sourceRe = regexp.MustCompile(`^\s*[-*•]\s*(.+?)\s+-\s+(https?://\S+)\s*$`)
	numberRe = regexp.MustCompile(`\d[\d.,]*`)
)

// Parse извлекает оценку из текста. Строки вида "MIN: R$ 5.800,00",
// "MAX: 7200", "ANALISE: ..." и "- Título - https://..." распознаются
// независимо от порядка. Источники без ссылки и сверх MaxSources отбрасываются.
func Parse(text string) (*Insight, error) {
	var (
		insight        Insight
		hasMin, hasMax bool
		analysis       []string
		inAnalysis     bool
	)

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()

		switch {
		case minRe.MatchString(line):
			inAnalysis = false
			if v, ok := parseAmount(minRe.FindStringSubmatch(line)[1]); ok {
				insight.MinPrice, hasMin = v, true
			}
		case maxRe.MatchString(line):
			inAnalysis = false
			if v, ok := parseAmount(maxRe.FindStringSubmatch(line)[1]); ok {
				insight.MaxPrice, hasMax = v, true
			}
		case analRe.MatchString(line):
			inAnalysis = true
			if s := strings.TrimSpace(analRe.FindStringSubmatch(line)[1]); s != "" {
				analysis = append(analysis, s)
			}
		case sourceRe.MatchString(line):
			inAnalysis = false
			if len(insight.Sources) < MaxSources {
				m := sourceRe.FindStringSubmatch(line)
				insight.Sources = append(insight.Sources, Source{Title: m[1], URI: m[2]})
			}
		case inAnalysis && strings.TrimSpace(line) != "":
			analysis = append(analysis, strings.TrimSpace(line))
		default:
			inAnalysis = false
		}
	}

	if !hasMin || !hasMax {
		return nil, ErrNoInsight
	}
	if insight.MinPrice > insight.MaxPrice {
		insight.MinPrice, insight.MaxPrice = insight.MaxPrice, insight.MinPrice
	}
	insight.Analysis = strings.Join(analysis, " ")
	return &insight, nil
}

// parseAmount разбирает сумму в реалах в форматах "5.800,00", "5800.50" и "5800".
func parseAmount(s string) (int64, bool) {
	num := numberRe.FindString(s)
	if num == "" {
		return 0, false
	}

	switch {
	case strings.Contains(num, ","):
		num = strings.ReplaceAll(num, ".", "")
		num = strings.Replace(num, ",", ".", 1)
	case strings.Count(num, ".") > 1:
		num = strings.ReplaceAll(num, ".", "")
	case strings.Contains(num, "."):
		if i := strings.LastIndex(num, "."); len(num)-i-1 == 3 {
			num = strings.ReplaceAll(num, ".", "")
		}
	}
	num = strings.TrimRight(num, ".")

	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	cents, err := model.ToCents(v)
	return cents, err == nil
}

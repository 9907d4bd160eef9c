package fetcher

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hansard-crawler/internal/dates"
	"github.com/JakeFAU/hansard-crawler/internal/filename"
	"github.com/JakeFAU/hansard-crawler/internal/hansard"
)

// LinkExtractor turns listing markup into candidate documents.
type LinkExtractor struct {
	base  *url.URL
	dates *dates.Extractor
}

// NewLinkExtractor resolves relative links against baseURL.
func NewLinkExtractor(baseURL string, extractor *dates.Extractor) (*LinkExtractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}
	if extractor == nil {
		extractor = dates.New(nil)
	}
	return &LinkExtractor{base: base, dates: extractor}, nil
}

// Extract returns one candidate per distinct document link, in page order.
// Filenames are unique against taken, which is updated as names are assigned.
func (e *LinkExtractor) Extract(html string, taken filename.Taken) ([]hansard.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	if taken == nil {
		taken = filename.NewTaken()
	}

	seen := make(map[string]struct{})
	var out []hansard.Candidate
	var firstErr error
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, ok := e.resolve(href)
		if !ok {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		title := strings.Join(strings.Fields(s.Text()), " ")
		if title == "" {
			title, _ = s.Attr("title")
		}
		c, err := e.candidate(link, title, taken)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		out = append(out, c)
	})
	if firstErr != nil {
		return out, firstErr
	}
	return out, nil
}

func (e *LinkExtractor) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := e.base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(path.Ext(abs.Path), filename.Extension) {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func (e *LinkExtractor) candidate(link, title string, taken filename.Taken) (hansard.Candidate, error) {
	c := hansard.Candidate{URL: link, Title: title}

	d, ok := e.dates.RecoverDate(title)
	if !ok {
		d, ok = e.dates.RecoverDate(urlText(link))
	}
	if ok {
		day := d
		c.Date = &day
	}

	c.Period = hansard.DefaultPeriod
	if p, found := dates.MatchPeriod(title); found {
		c.Period = p
	}

	if c.Date == nil {
		c.Filename = filename.Unique(filename.Fallback(link), taken)
	} else {
		name, err := filename.Generate(*c.Date, c.Period, taken)
		if err != nil {
			return hansard.Candidate{}, fmt.Errorf("name %s: %w", link, err)
		}
		c.Filename = name
	}
	taken.Add(c.Filename)
	return c, nil
}

// urlText is the unescaped path of link, which is where dates hide.
func urlText(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	return u.Path
}

// InRange reports whether c passes the range filter; undated candidates
// always pass.
func InRange(c hansard.Candidate, r hansard.DateRange) bool {
	if c.Date == nil {
		return true
	}
	return r.Contains(*c.Date)
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
)

// PerPageOptions are the selectable rows-per-page values.
var PerPageOptions = []int{5, 10, 25, 50}

// Pagination holds pagination data for list templates.
//
// The observation API returns pages without a total count, so TotalItems is
// an estimate: a full page suggests at least one more page exists, a short
// page is the last one.
type Pagination struct {
	CurrentPage int
	TotalPages  int
	TotalItems  int
	PerPage     int
	Rows        int
	HasPrev     bool
	HasNext     bool
	PrevPage    int
	NextPage    int
	Pages       []PaginationPage
	BaseURL     string
	QueryString string
}

// PaginationPage represents a single page link.
type PaginationPage struct {
	Number     int
	URL        string
	IsCurrent  bool
	IsEllipsis bool
}

// EstimateTotal returns the assumed total item count after fetching page
// (1-based) with perPage rows and receiving rows items.
func EstimateTotal(page, perPage, rows int) int {
	if page < 1 {
		page = 1
	}
	if rows >= perPage {
		return (page + 1) * perPage
	}
	return (page-1)*perPage + rows
}

// ParsePage reads a 1-based page number, defaulting to 1.
func ParsePage(q url.Values) int {
	page, err := strconv.Atoi(q.Get(paramPage))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// ParsePerPage reads the rows-per-page choice. Values outside PerPageOptions
// fall back to def.
func ParsePerPage(q url.Values, def int) int {
	n, err := strconv.Atoi(q.Get(paramPerPage))
	if err != nil || !slices.Contains(PerPageOptions, n) {
		return def
	}
	return n
}

// BuildPagination creates pagination data for a page that returned rows items.
// baseURL is the path without query string (e.g., "/observations");
// queryParams are the current query parameters to preserve (e.g., filters).
func BuildPagination(currentPage, rows, perPage int, baseURL string, queryParams url.Values) Pagination {
	totalItems := EstimateTotal(currentPage, perPage, rows)
	totalPages := (totalItems + perPage - 1) / perPage
	if totalPages < currentPage {
		// Past the end: keep the current page reachable.
		totalPages = currentPage
	}
	if totalPages < 1 {
		totalPages = 1
	}

	pagination := Pagination{
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		TotalItems:  totalItems,
		PerPage:     perPage,
		Rows:        rows,
		HasPrev:     currentPage > 1,
		HasNext:     currentPage < totalPages,
		PrevPage:    currentPage - 1,
		NextPage:    currentPage + 1,
		BaseURL:     baseURL,
	}

	// Build query string without page parameter
	if queryParams != nil {
		params := make(url.Values)
		for k, v := range queryParams {
			if k != paramPage && len(v) > 0 && v[0] != "" {
				params[k] = v
			}
		}
		if len(params) > 0 {
			pagination.QueryString = params.Encode()
		}
	}

	// Build page links (show max 5 pages around current with ellipsis)
	start := currentPage - 2
	end := currentPage + 2
	if start < 1 {
		start = 1
		end = 5
	}
	if end > totalPages {
		end = totalPages
		start = max(end-4, 1)
	}

	if start > 1 {
		pagination.Pages = append(pagination.Pages, PaginationPage{Number: 1, URL: pagination.PageURL(1)})
		if start > 2 {
			pagination.Pages = append(pagination.Pages, PaginationPage{IsEllipsis: true})
		}
	}

	for i := start; i <= end; i++ {
		pagination.Pages = append(pagination.Pages, PaginationPage{
			Number:    i,
			URL:       pagination.PageURL(i),
			IsCurrent: i == currentPage,
		})
	}

	if end < totalPages {
		if end < totalPages-1 {
			pagination.Pages = append(pagination.Pages, PaginationPage{IsEllipsis: true})
		}
		pagination.Pages = append(pagination.Pages, PaginationPage{Number: totalPages, URL: pagination.PageURL(totalPages)})
	}

	return pagination
}

// PageURL returns the URL for a specific page number.
func (p Pagination) PageURL(page int) string {
	if p.QueryString != "" {
		return fmt.Sprintf("%s?%s&page=%d", p.BaseURL, p.QueryString, page)
	}
	return fmt.Sprintf("%s?page=%d", p.BaseURL, page)
}

// PrevURL returns the URL for the previous page.
func (p Pagination) PrevURL() string {
	return p.PageURL(p.PrevPage)
}

// NextURL returns the URL for the next page.
func (p Pagination) NextURL() string {
	return p.PageURL(p.NextPage)
}

// ShouldShow returns true if pagination should be displayed (more than 1 page).
func (p Pagination) ShouldShow() bool {
	return p.TotalPages > 1
}

// PerPageURL returns the first page URL for another rows-per-page choice.
func (p Pagination) PerPageURL(perPage int) string {
	q, _ := url.ParseQuery(p.QueryString)
	q.Set(paramPerPage, strconv.Itoa(perPage))
	return fmt.Sprintf("%s?%s&page=1", p.BaseURL, q.Encode())
}

// PageRange returns a description of the current page range, e.g. "26-50".
func (p Pagination) PageRange() string {
	if p.Rows == 0 {
		return "0"
	}
	start := (p.CurrentPage-1)*p.PerPage + 1
	return fmt.Sprintf("%d-%d", start, start+p.Rows-1)
}

package entity

import (
	"strings"
	"time"
)

const (
	MinRating = 1
	MaxRating = 5

	// ReviewDateLayout is the calendar-date format reviews are stamped with.
	ReviewDateLayout = "2006-01-02"
)

type Review struct {
	ID        ID     `json:"id,omitempty"`
	ProductID ID     `json:"productId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	Date      string `json:"date"`
}

// NewReview stamps a review for itemID with the author's identity and the
// UTC date of at. It validates rating and comment.
func NewReview(itemID ID, author User, rating int, comment string, at time.Time) (Review, error) {
	if rating < MinRating || rating > MaxRating {
		return Review{}, ErrInvalidRating
	}
	if strings.TrimSpace(comment) == "" {
		return Review{}, ErrEmptyComment
	}
	return Review{
		ProductID: itemID,
		UserID:    author.ID,
		UserName:  author.Name(),
		Rating:    rating,
		Comment:   comment,
		Date:      at.UTC().Format(ReviewDateLayout),
	}, nil
}

package models

import "go.mongodb.org/mongo-driver/bson"

// Pagination is the window requested from the data-fetch collaborator
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ProductQuery is the paginated request handed to a product source
type ProductQuery struct {
	Filter     bson.M     `json:"filter"`
	Pagination Pagination `json:"pagination"`
}

// NewProductQuery creates a query for the first page. A nil filter becomes
// the universal predicate.
func NewProductQuery(filter bson.M, limit int) ProductQuery {
	if filter == nil {
		filter = bson.M{}
	}
	return ProductQuery{
		Filter:     filter,
		Pagination: Pagination{Offset: 0, Limit: limit},
	}
}

// Product is a catalog entry as returned by a product source
type Product struct {
	ID         string                 `json:"id" bson:"id"`
	SkuID      string                 `json:"skuId" bson:"skuId"`
	Attributes map[string]interface{} `json:"attributes" bson:"attributes"`
}

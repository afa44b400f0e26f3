package testutil

import (
	"time"

	"github.com/nimburion/docstore/pkg/document"
)

// Users returns a small set of user records with nested fields and lists.
func Users() []document.Record {
	return []document.Record{
		{
			"_id":   "u1",
			"name":  "ada",
			"age":   int64(36),
			"tags":  []any{"admin", "ops"},
			"email": document.Record{"primary": "ada@example.com", "verified": true},
			"since": time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			"_id":   "u2",
			"name":  "linus",
			"age":   int64(28),
			"tags":  []any{"dev"},
			"email": document.Record{"primary": "linus@example.com", "verified": false},
			"since": time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"_id":  "u3",
			"name": "grace",
			"age":  int64(45),
			"tags": []any{},
		},
	}
}

// Orders returns orders referencing Users by user_id.
func Orders() []document.Record {
	return []document.Record{
		{"_id": "o1", "user_id": "u1", "total": 12.5, "items": []any{document.Record{"sku": "a", "qty": int64(1)}}},
		{"_id": "o2", "user_id": "u2", "total": 99.0, "items": []any{document.Record{"sku": "b", "qty": int64(3)}}},
		{"_id": "o3", "user_id": "u1", "total": 7.25, "items": []any{}},
		{"_id": "o4", "user_id": "missing", "total": 1.0},
	}
}

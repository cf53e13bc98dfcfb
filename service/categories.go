package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"taskboard/domain"
	"taskboard/records"
)

const categoryPageSize = 50

// CategoryService lists categories and manages subcategories.
type CategoryService struct {
	store records.Store
}

func NewCategoryService(store records.Store) *CategoryService {
	return &CategoryService{store: store}
}

// GetAll returns the categories ordered by name with All first. When the
// store fails the list still holds All and the error is returned alongside.
func (s *CategoryService) GetAll(ctx context.Context) ([]domain.Category, error) {
	out := []domain.Category{domain.AllCategory()}
	recs, err := s.store.FetchRecords(ctx, CategoryCollection, records.Query{
		Fields:     records.Fields(categoryFields...),
		OrderBy:    []records.OrderBy{{FieldName: records.FieldName, SortType: records.Asc}},
		PagingInfo: &records.PagingInfo{Limit: categoryPageSize, Offset: 0},
	})
	if err != nil {
		logFailure(err, CategoryCollection, "fetch")
		return out, err
	}
	for _, r := range recs {
		out = append(out, categoryFromRecord(r))
	}
	return out, nil
}

func (s *CategoryService) GetByID(ctx context.Context, id string) (domain.Category, error) {
	if strings.EqualFold(strings.TrimSpace(id), domain.AllCategoryID) {
		return domain.AllCategory(), nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	rec, err := s.store.GetRecordByID(ctx, CategoryCollection, n, records.Query{Fields: records.Fields(categoryFields...)})
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return domain.Category{}, domain.ErrCategoryNotFound
		}
		logFailure(err, CategoryCollection, "get")
		return domain.Category{}, err
	}
	return categoryFromRecord(rec), nil
}

// Subcategories lists the subcategories of parent, or all of them when
// parent is empty or "all".
func (s *CategoryService) Subcategories(ctx context.Context, parent string) ([]domain.Subcategory, error) {
	var parentID int64
	if !domain.IsAllCategoryID(parent) {
		n, err := strconv.ParseInt(strings.TrimSpace(parent), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid parent category %q: %w", parent, domain.ErrCategoryNotFound)
		}
		parentID = n
	}

	var out []domain.Subcategory
	for offset := 0; ; offset += records.MaxLimit {
		page, err := s.store.FetchRecords(ctx, SubcategoryCollection, records.Query{
			Fields:     records.Fields(subcategoryFields...),
			OrderBy:    []records.OrderBy{{FieldName: records.FieldName, SortType: records.Asc}},
			PagingInfo: &records.PagingInfo{Limit: records.MaxLimit, Offset: offset},
		})
		if err != nil {
			logFailure(err, SubcategoryCollection, "fetch")
			return nil, err
		}
		for _, r := range page {
			sub := subcategoryFromRecord(r)
			if parentID != 0 && sub.ParentCategoryID != parentID {
				continue
			}
			out = append(out, sub)
		}
		if len(page) < records.MaxLimit {
			break
		}
	}
	if out == nil {
		out = []domain.Subcategory{}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *CategoryService) CreateSubcategory(ctx context.Context, in domain.SubcategoryInput) (domain.Subcategory, error) {
	if err := in.Validate(); err != nil {
		return domain.Subcategory{}, err
	}
	if err := s.checkParent(ctx, in.ParentCategoryID); err != nil {
		return domain.Subcategory{}, err
	}
	results, err := s.store.CreateRecords(ctx, SubcategoryCollection, []records.Record{subcategoryRecord(in)})
	if err != nil {
		logFailure(err, SubcategoryCollection, "create")
		return domain.Subcategory{}, err
	}
	return singleSubcategory("create", results)
}

func (s *CategoryService) UpdateSubcategory(ctx context.Context, id int64, in domain.SubcategoryInput) (domain.Subcategory, error) {
	if err := in.Validate(); err != nil {
		return domain.Subcategory{}, err
	}
	if err := s.checkParent(ctx, in.ParentCategoryID); err != nil {
		return domain.Subcategory{}, err
	}
	rec := subcategoryRecord(in)
	rec[records.FieldID] = id
	results, err := s.store.UpdateRecords(ctx, SubcategoryCollection, []records.Record{rec})
	if err != nil {
		logFailure(err, SubcategoryCollection, "update")
		return domain.Subcategory{}, err
	}
	return singleSubcategory("update", results)
}

func (s *CategoryService) DeleteSubcategory(ctx context.Context, id int64) error {
	results, err := s.store.DeleteRecords(ctx, SubcategoryCollection, []int64{id})
	if err != nil {
		logFailure(err, SubcategoryCollection, "delete")
		return err
	}
	if _, err := records.Split("delete", SubcategoryCollection, results); err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return domain.ErrSubcategoryNotFound
		}
		logFailure(err, SubcategoryCollection, "delete")
		return err
	}
	return nil
}

// checkParent rejects subcategories whose parent does not exist.
func (s *CategoryService) checkParent(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.ErrCategoryNotFound
	}
	_, err := s.GetByID(ctx, strconv.FormatInt(id, 10))
	return err
}

func singleSubcategory(op string, results []records.Result) (domain.Subcategory, error) {
	ok, err := records.Split(op, SubcategoryCollection, results)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return domain.Subcategory{}, domain.ErrSubcategoryNotFound
		}
		logFailure(err, SubcategoryCollection, op)
		return domain.Subcategory{}, err
	}
	if len(ok) == 0 {
		return domain.Subcategory{}, fmt.Errorf("%s subcategory: no result returned", op)
	}
	return subcategoryFromRecord(ok[0]), nil
}

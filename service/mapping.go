package service

import (
	"strconv"
	"strings"
	"time"

	"taskboard/domain"
	"taskboard/records"
)

// Collection and field names on the record platform.
const (
	TaskCollection        = "task_c"
	CategoryCollection    = "category_c"
	SubcategoryCollection = "subcategory_c"

	fieldTitle       = "title_c"
	fieldDescription = "description_c"
	fieldCompleted   = "completed_c"
	fieldCategory    = "category_c"
	fieldSubcategory = "subcategory_c"
	fieldPriority    = "priority_c"
	fieldDueDate     = "due_date_c"
	fieldCreatedAt   = "created_at_c"
	fieldOrder       = "order_c"
	fieldStatus      = "status_c"
	fieldColor       = "color_c"
	fieldIcon        = "icon_c"
	fieldParentID    = "parent_category_id_c"
)

// isoLayout matches the millisecond timestamps written by browsers.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

var taskFields = []string{
	records.FieldID, records.FieldName,
	fieldTitle, fieldDescription, fieldCompleted, fieldCategory, fieldSubcategory,
	fieldPriority, fieldDueDate, fieldCreatedAt, fieldOrder, fieldStatus,
	records.FieldTags, records.FieldCreatedOn, records.FieldModifiedOn,
}

var categoryFields = []string{
	records.FieldID, records.FieldName, fieldColor, fieldIcon,
	records.FieldTags, records.FieldCreatedOn, records.FieldModifiedOn,
}

var subcategoryFields = []string{
	records.FieldID, records.FieldName, fieldParentID, fieldColor, fieldIcon,
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// recordTime reads a timestamp field, accepting the loose formats older
// records were written with.
func recordTime(rec records.Record, field string) *time.Time {
	if t := rec.Time(field); t != nil {
		return t
	}
	t, err := domain.ParseDueDate(rec.String(field))
	if err != nil {
		return nil
	}
	return t
}

func taskFromRecord(rec records.Record) domain.Task {
	id, _ := rec.ID()
	title := rec.String(fieldTitle)
	if title == "" {
		title = rec.String(records.FieldName)
	}
	t := domain.Task{
		ID:          id,
		Title:       title,
		Description: rec.String(fieldDescription),
		Category:    rec.String(fieldCategory),
		Subcategory: rec.String(fieldSubcategory),
		Priority:    domain.Priority(rec.String(fieldPriority)),
		Status:      domain.Status(rec.String(fieldStatus)),
		Completed:   rec.Bool(fieldCompleted),
		DueDate:     recordTime(rec, fieldDueDate),
		CreatedAt:   recordTime(rec, fieldCreatedAt),
		Order:       rec.Int(fieldOrder),
		Tags:        rec.String(records.FieldTags),
		CreatedOn:   recordTime(rec, records.FieldCreatedOn),
		ModifiedOn:  recordTime(rec, records.FieldModifiedOn),
	}
	if t.Priority == "" {
		t.Priority = domain.DefaultPriority
	}
	if t.Status == "" {
		t.Status = domain.DefaultStatus
	}
	return t
}

func tasksFromRecords(recs []records.Record) []domain.Task {
	out := make([]domain.Task, 0, len(recs))
	for _, r := range recs {
		out = append(out, taskFromRecord(r))
	}
	return out
}

// newTaskRecord applies the creation defaults to a validated input.
func newTaskRecord(in domain.TaskInput, due *time.Time, now time.Time) records.Record {
	title := strings.TrimSpace(in.Title)
	category := in.Category
	if category == "" {
		category = domain.DefaultCategory
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.DefaultPriority
	}
	status := in.Status
	if status == "" {
		status = domain.DefaultStatus
	}
	order := in.Order
	if order == 0 {
		order = domain.DefaultOrder
	}
	rec := records.Record{
		records.FieldName: title,
		fieldTitle:        title,
		fieldDescription:  in.Description,
		fieldCompleted:    in.Completed || status == domain.StatusCompleted,
		fieldCategory:     category,
		fieldSubcategory:  in.Subcategory,
		fieldPriority:     string(priority),
		fieldDueDate:      nil,
		fieldCreatedAt:    formatTime(now),
		fieldOrder:        order,
		fieldStatus:       string(status),
	}
	if due != nil {
		rec[fieldDueDate] = formatTime(*due)
	}
	return rec
}

// patchRecord holds only the fields the patch sets. A title change also
// renames the record.
func patchRecord(id int64, p domain.TaskPatch) records.Record {
	rec := records.Record{records.FieldID: id}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		rec[records.FieldName] = title
		rec[fieldTitle] = title
	}
	if p.Description != nil {
		rec[fieldDescription] = *p.Description
	}
	if p.Completed != nil {
		rec[fieldCompleted] = *p.Completed
	}
	if p.Category != nil {
		rec[fieldCategory] = *p.Category
	}
	if p.Subcategory != nil {
		rec[fieldSubcategory] = *p.Subcategory
	}
	if p.Priority != nil {
		rec[fieldPriority] = string(*p.Priority)
	}
	if p.DueDate != nil {
		due, _ := domain.ParseDueDate(*p.DueDate)
		if due == nil {
			rec[fieldDueDate] = nil
		} else {
			rec[fieldDueDate] = formatTime(*due)
		}
	}
	if p.Order != nil {
		rec[fieldOrder] = *p.Order
	}
	if p.Status != nil {
		rec[fieldStatus] = string(*p.Status)
	}
	return rec
}

func categoryFromRecord(rec records.Record) domain.Category {
	id, _ := rec.ID()
	return domain.Category{
		ID:    strconv.FormatInt(id, 10),
		Name:  rec.String(records.FieldName),
		Color: rec.String(fieldColor),
		Icon:  rec.String(fieldIcon),
	}
}

func subcategoryFromRecord(rec records.Record) domain.Subcategory {
	id, _ := rec.ID()
	return domain.Subcategory{
		ID:               id,
		Name:             rec.String(records.FieldName),
		ParentCategoryID: rec.Int64(fieldParentID),
		Color:            rec.String(fieldColor),
		Icon:             rec.String(fieldIcon),
	}
}

func subcategoryRecord(in domain.SubcategoryInput) records.Record {
	return records.Record{
		records.FieldName: strings.TrimSpace(in.Name),
		fieldParentID:     in.ParentCategoryID,
		fieldColor:        in.Color,
		fieldIcon:         in.Icon,
	}
}

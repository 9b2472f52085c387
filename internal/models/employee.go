package models

import (
	"time"

	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/util"
)

// ContractType of an employee.
type ContractType string

const (
	ContractPermanent ContractType = "permanent"
	ContractFixedTerm ContractType = "fixed_term"
	ContractCasual    ContractType = "casual"
)

// DeliveryMethod is how warning documents are delivered to an employee.
type DeliveryMethod string

const (
	DeliveryEmail    DeliveryMethod = "email"
	DeliveryPrint    DeliveryMethod = "print"
	DeliveryInPerson DeliveryMethod = "in_person"
)

// Valid reports whether m is a known delivery method.
func (m DeliveryMethod) Valid() bool {
	switch m {
	case DeliveryEmail, DeliveryPrint, DeliveryInPerson:
		return true
	}
	return false
}

// Employee belongs to exactly one organization.
type Employee struct {
	ID             string
	OrganizationID string
	EmployeeNumber string
	FirstName      string
	LastName       string
	Email          string
	Department     string
	Position       string
	ContractType   ContractType
	ManagerID      string
	DeliveryMethod DeliveryMethod
	ActiveState    ActiveState
	ArchivedAt     time.Time
	ArchiveReason  string
	ArchivedBy     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName joins first and last name.
func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	default:
		return e.FirstName + " " + e.LastName
	}
}

// Fields returns the stored representation used when creating an employee.
// Archival fields are owned by the lifecycle machine and omitted.
func (e Employee) Fields() store.Fields {
	f := store.Fields{
		"employeeNumber": e.EmployeeNumber,
		"firstName":      e.FirstName,
		"lastName":       e.LastName,
		"department":     e.Department,
		"position":       e.Position,
		"isActive":       e.ActiveState != Archived,
	}
	if e.Email != "" {
		f["email"] = e.Email
	}
	if e.ContractType != "" {
		f["contractType"] = string(e.ContractType)
	}
	if e.ManagerID != "" {
		f["managerId"] = e.ManagerID
	}
	if e.DeliveryMethod != "" {
		f["deliveryMethod"] = string(e.DeliveryMethod)
	}
	return f
}

func EmployeeFromDocument(doc *store.Document) Employee {
	return Employee{
		ID:             doc.ID,
		OrganizationID: util.AsString(doc.Get("organizationId")),
		EmployeeNumber: util.AsString(doc.Get("employeeNumber")),
		FirstName:      util.AsString(doc.Get("firstName")),
		LastName:       util.AsString(doc.Get("lastName")),
		Email:          util.AsString(doc.Get("email")),
		Department:     util.AsString(doc.Get("department")),
		Position:       util.AsString(doc.Get("position")),
		ContractType:   ContractType(util.AsString(doc.Get("contractType"))),
		ManagerID:      util.AsString(doc.Get("managerId")),
		DeliveryMethod: DeliveryMethod(util.AsString(doc.Get("deliveryMethod"))),
		ActiveState:    ActiveStateOf(doc.Get("isActive")),
		ArchivedAt:     util.AsTime(doc.Get("archivedAt")),
		ArchiveReason:  util.AsString(doc.Get("archiveReason")),
		ArchivedBy:     util.AsString(doc.Get("archivedBy")),
		CreatedAt:      util.AsTime(doc.Get("createdAt")),
		UpdatedAt:      util.AsTime(doc.Get("updatedAt")),
	}
}

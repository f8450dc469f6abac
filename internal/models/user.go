package models

import (
	"strings"
)

// Currencies a merchant can pick for display.
var Currencies = []string{"RS", "USD", "INR", "SAR"}

var BusinessTypes = []string{
	"General",
	"Aluminum / Steel / Glass",
	"Apparels / Garments",
	"Automobile Shop",
	"Bakery / Cafe / Kiryana Store",
	"Medical Store",
	"Electronics",
	"Gold & Jewelry",
	"Other",
}

// Profile is the users/{uid} document: the identity plus business profile.
type Profile struct {
	UserID       string `json:"userId"`
	PhoneNumber  string `json:"phoneNumber"`
	BusinessName string `json:"businessName"`
	BusinessType string `json:"businessType"`
	Currency     string `json:"currency"`
	Username     string `json:"username"`
}

// OnboardingComplete holds iff a non-empty business name has been persisted.
func (p Profile) OnboardingComplete() bool {
	return strings.TrimSpace(p.BusinessName) != ""
}

func ValidCurrency(c string) bool {
	return contains(Currencies, c)
}

func ValidBusinessType(t string) bool {
	return contains(BusinessTypes, t)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

package model

import "strings"

// 注文時の住所スナップショット。ordersにJSON文字列で保存する
type AddressSnapshot struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`

	//番地など
	Address string `json:"address"`

	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
}

// 必須項目が埋まっているか
func (a AddressSnapshot) IsComplete() bool {
	return strings.TrimSpace(a.FirstName) != "" &&
		strings.TrimSpace(a.LastName) != "" &&
		strings.TrimSpace(a.Address) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.Country) != ""
}

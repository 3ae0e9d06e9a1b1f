package marketplace

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// The Finding API wraps every field in a single-element array. The wire
// types below mirror that shape; Item exposes flat accessors over it.

type searchEnvelope struct {
	Response []searchResponse `json:"findCompletedItemsResponse"`
}

type searchResponse struct {
	Ack          []string       `json:"ack"`
	SearchResult []searchResult `json:"searchResult"`
}

type searchResult struct {
	Count string `json:"@count"`
	Item  []Item `json:"item"`
}

// Item is a single raw sold listing as returned by the provider. Fields
// are free-text; normalization happens downstream.
type Item struct {
	ItemID        []string        `json:"itemId"`
	Title         []string        `json:"title"`
	Condition     []ItemCondition `json:"condition"`
	SellingStatus []SellingStatus `json:"sellingStatus"`
	ListingInfo   []ListingInfo   `json:"listingInfo"`
}

// ItemCondition carries the seller-entered condition label.
type ItemCondition struct {
	ConditionDisplayName []string `json:"conditionDisplayName"`
}

// SellingStatus carries the final sold price.
type SellingStatus struct {
	CurrentPrice []CurrentPrice `json:"currentPrice"`
}

// CurrentPrice is a currency-tagged price value.
type CurrentPrice struct {
	CurrencyID string `json:"@currencyId"`
	Value      string `json:"__value__"`
}

// ListingInfo carries listing timestamps.
type ListingInfo struct {
	EndTime []string `json:"endTime"`
}

// NewItem builds a listing from flat values. Intended for tests and
// fixtures; production items come off the wire.
func NewItem(price, condition, endTime string) Item {
	return Item{
		Condition:     []ItemCondition{{ConditionDisplayName: []string{condition}}},
		SellingStatus: []SellingStatus{{CurrentPrice: []CurrentPrice{{CurrencyID: "USD", Value: price}}}},
		ListingInfo:   []ListingInfo{{EndTime: []string{endTime}}},
	}
}

// PriceValue returns the raw sold price string, or "" when absent.
func (i Item) PriceValue() string {
	if len(i.SellingStatus) == 0 || len(i.SellingStatus[0].CurrentPrice) == 0 {
		return ""
	}
	return i.SellingStatus[0].CurrentPrice[0].Value
}

// ConditionName returns the raw condition display string, or "" when absent.
func (i Item) ConditionName() string {
	if len(i.Condition) == 0 || len(i.Condition[0].ConditionDisplayName) == 0 {
		return ""
	}
	return i.Condition[0].ConditionDisplayName[0]
}

// EndTime returns the raw listing end timestamp string, or "" when absent.
func (i Item) EndTime() string {
	if len(i.ListingInfo) == 0 || len(i.ListingInfo[0].EndTime) == 0 {
		return ""
	}
	return i.ListingInfo[0].EndTime[0]
}

func decodeSearchResponse(body []byte) ([]Item, error) {
	var env searchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "unmarshal search envelope")
	}
	if len(env.Response) == 0 {
		return nil, eris.New("empty search response")
	}
	resp := env.Response[0]
	if len(resp.Ack) > 0 && resp.Ack[0] == "Failure" {
		return nil, eris.New("provider reported failure ack")
	}
	if len(resp.SearchResult) == 0 {
		return nil, nil
	}
	return resp.SearchResult[0].Item, nil
}

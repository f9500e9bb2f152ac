package payload

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FieldMap holds the ordered candidate paths for every logical field, each
// as a pipe-delimited list understood by Resolve.
type FieldMap struct {
	Name       string `yaml:"name"`
	Gross      string `yaml:"gross"`
	Net        string `yaml:"net"`
	Action     string `yaml:"action"`
	Product    string `yaml:"product"`
	Email      string `yaml:"email"`
	Phone      string `yaml:"phone"`
	UTMs       string `yaml:"utms"`
	Project    string `yaml:"project"`
	Origin     string `yaml:"origin"`
	Status     string `yaml:"status"`
	Method     string `yaml:"method"`
	Event      string `yaml:"event"`
	Sale       string `yaml:"sale"`
	Offer      string `yaml:"offer"`
	ExternalID string `yaml:"external_id"`
	CreatedAt  string `yaml:"created_at"`
}

// DefaultFieldMap returns the built-in candidate chains. Paths prefixed with
// "body." cover payloads that were wrapped twice.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Name:       "client.name|body.client.name|name|content.name",
		Gross:      "sale.amount|body.sale.amount|offer.amount|body.offer.amount|valor",
		Net:        "sale.seller_balance|body.sale.seller_balance|seller_balance|body.seller_balance",
		Action:     "acao|body.acao",
		Product:    "product.name|body.product.name|produto",
		Email:      "client.email|body.client.email|email|content.email",
		Phone:      "client.cellphone|body.client.cellphone|formatted_phone|whatsapp|telefone|content.whatsapp",
		UTMs:       "utms|content.utms",
		Project:    "projeto|from|content.from",
		Origin:     "from|content.from",
		Status:     "sale.status|body.sale.status|currentStatus|body.currentStatus",
		Method:     "sale.method|body.sale.method|method|body.method",
		Event:      "event|body.event|type|body.type",
		Sale:       "sale|body.sale",
		Offer:      "offer|body.offer",
		ExternalID: "id|sale.id|body.sale.id|client.id|body.client.id",
		CreatedAt:  "created|sale.created_at|body.sale.created_at|client.created_at|body.client.created_at",
	}
}

// LoadFieldMap reads a YAML file of candidate chains. Keys missing from the
// file keep their default chain.
func LoadFieldMap(path string) (FieldMap, error) {
	fm := DefaultFieldMap()
	data, err := os.ReadFile(path)
	if err != nil {
		return fm, eris.Wrapf(err, "payload: read field map %s", path)
	}
	var override FieldMap
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fm, eris.Wrapf(err, "payload: parse field map %s", path)
	}
	fm.merge(override)
	return fm, nil
}

func (fm *FieldMap) merge(o FieldMap) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&fm.Name, o.Name)
	set(&fm.Gross, o.Gross)
	set(&fm.Net, o.Net)
	set(&fm.Action, o.Action)
	set(&fm.Product, o.Product)
	set(&fm.Email, o.Email)
	set(&fm.Phone, o.Phone)
	set(&fm.UTMs, o.UTMs)
	set(&fm.Project, o.Project)
	set(&fm.Origin, o.Origin)
	set(&fm.Status, o.Status)
	set(&fm.Method, o.Method)
	set(&fm.Event, o.Event)
	set(&fm.Sale, o.Sale)
	set(&fm.Offer, o.Offer)
	set(&fm.ExternalID, o.ExternalID)
	set(&fm.CreatedAt, o.CreatedAt)
}

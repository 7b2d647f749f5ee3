package blueprints

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// librarySchema guards the data file shape before decoding into typed
// structs. Decoding errors from malformed YAML are cryptic; schema errors
// name the offending path.
const librarySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["utilities", "devices", "strains"],
  "properties": {
    "utilities": {
      "type": "object",
      "required": ["price_per_kwh", "price_per_liter_water", "price_per_gram_nutrients"],
      "properties": {
        "price_per_kwh": {"type": "number", "minimum": 0},
        "price_per_liter_water": {"type": "number", "minimum": 0},
        "price_per_gram_nutrients": {"type": "number", "minimum": 0}
      }
    },
    "devices": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "category", "capital_cost"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "category": {"enum": ["light", "hvac", "dehumidifier", "co2", "irrigation"]},
          "capital_cost": {"type": "number", "minimum": 0},
          "base_maintenance_rate_per_hour": {"type": "number", "minimum": 0},
          "maintenance_step_per_hour": {"type": "number", "minimum": 0},
          "power_draw_kw": {"type": "number", "minimum": 0},
          "wear_per_hour": {"type": "number", "minimum": 0}
        }
      }
    },
    "strains": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "sale_price_per_gram", "max_biomass_g"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "seed_cost": {"type": "number", "minimum": 0},
          "sale_price_per_gram": {"type": "number", "minimum": 0},
          "max_biomass_g": {"type": "number", "exclusiveMinimum": 0}
        }
      }
    }
  }
}`

// libraryFile mirrors the on-disk shape: devices and strains are lists for
// readable YAML, keyed into maps after validation.
type libraryFile struct {
	Utilities struct {
		PricePerKwh           float64 `yaml:"price_per_kwh"`
		PricePerLiterWater    float64 `yaml:"price_per_liter_water"`
		PricePerGramNutrients float64 `yaml:"price_per_gram_nutrients"`
	} `yaml:"utilities"`
	Devices []DeviceBlueprint `yaml:"devices"`
	Strains []Strain          `yaml:"strains"`
}

// Load reads, schema-validates, and indexes a library data file.
func Load(path string) (*Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}
	return Parse(raw)
}

// Parse validates and indexes raw YAML library data.
func Parse(raw []byte) (*Library, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var file libraryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode library: %w", err)
	}

	lib := &Library{
		Devices: make(map[string]DeviceBlueprint, len(file.Devices)),
		Strains: make(map[string]Strain, len(file.Strains)),
	}
	lib.Utilities.PricePerKwh = file.Utilities.PricePerKwh
	lib.Utilities.PricePerLiterWater = file.Utilities.PricePerLiterWater
	lib.Utilities.PricePerGramNutrients = file.Utilities.PricePerGramNutrients

	for _, d := range file.Devices {
		if _, dup := lib.Devices[d.ID]; dup {
			return nil, fmt.Errorf("duplicate device blueprint id %q", d.ID)
		}
		lib.Devices[d.ID] = d
	}
	for _, s := range file.Strains {
		if _, dup := lib.Strains[s.ID]; dup {
			return nil, fmt.Errorf("duplicate strain id %q", s.ID)
		}
		lib.Strains[s.ID] = s
	}

	if err := lib.validate(); err != nil {
		return nil, err
	}
	return lib, nil
}

// validateSchema runs the JSON Schema over the YAML document. The document
// is round-tripped through encoding/json first so all scalars land in the
// types the validator expects.
func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse library yaml: %w", err)
	}
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize library yaml: %w", err)
	}
	var norm any
	if err := json.Unmarshal(jsonBytes, &norm); err != nil {
		return fmt.Errorf("normalize library yaml: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("library.schema.json", strings.NewReader(librarySchema)); err != nil {
		return fmt.Errorf("load library schema: %w", err)
	}
	schema, err := compiler.Compile("library.schema.json")
	if err != nil {
		return fmt.Errorf("compile library schema: %w", err)
	}
	if err := schema.Validate(norm); err != nil {
		return fmt.Errorf("library data invalid: %w", err)
	}
	return nil
}

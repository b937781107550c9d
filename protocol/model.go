package protocol

// Model identifies the wand character edition.
type Model uint8

const (
	ModelHarryPotter     Model = 0x00
	ModelHermioneGranger Model = 0x01
	ModelRonWeasley      Model = 0x02
	ModelDumbledore      Model = 0x03
	ModelNewtScamander   Model = 0x04
	ModelWise            Model = 0x05
	ModelUnknown         Model = 0xFF
)

var modelNames = map[Model]string{
	ModelHarryPotter:     "Harry Potter (Adventurous)",
	ModelHermioneGranger: "Hermione Granger (Defiant)",
	ModelRonWeasley:      "Ron Weasley (Heroic)",
	ModelDumbledore:      "Dumbledore (Honourable)",
	ModelNewtScamander:   "Newt Scamander (Loyal)",
	ModelWise:            "Wise",
	ModelUnknown:         "Unknown Model",
}

// ModelFromID maps a raw wand type byte onto the closed model table.
func ModelFromID(id uint8) Model {
	m := Model(id)
	if _, ok := modelNames[m]; !ok {
		return ModelUnknown
	}
	return m
}

func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return modelNames[ModelUnknown]
}

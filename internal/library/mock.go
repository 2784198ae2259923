package library

var mockFolders = []Folder{
	{ID: "f1", Name: "Vision-Language Models", Description: "Multimodal pretraining and captioning"},
	{ID: "f2", Name: "Retrieval-Augmented Generation", Description: "Grounding LLM answers in documents"},
	{ID: "f3", Name: "Document Understanding", Description: "OCR and layout analysis"},
}

var mockPapers = []Paper{
	{
		ID:       "p1",
		FolderID: "f1",
		Title:    "BLIP-2: Bootstrapping Language-Image Pre-training with Frozen Image Encoders and Large Language Models",
		Filename: "blip2.pdf",
		Authors:  []string{"Junnan Li", "Dongxu Li", "Silvio Savarese", "Steven Hoi"},
		Year:     2023,
		Pages:    13,
		Abstract: "A generic and compute-efficient vision-language pre-training strategy bridging frozen image encoders and frozen LLMs.",
	},
	{
		ID:       "p2",
		FolderID: "f1",
		Title:    "Learning Transferable Visual Models From Natural Language Supervision",
		Filename: "clip.pdf",
		Authors:  []string{"Alec Radford", "Jong Wook Kim", "Chris Hallacy"},
		Year:     2021,
		Pages:    48,
		Abstract: "Contrastive pre-training on image-text pairs yields zero-shot transferable visual representations.",
	},
	{
		ID:       "p3",
		FolderID: "f2",
		Title:    "Retrieval-Augmented Generation for Knowledge-Intensive NLP Tasks",
		Filename: "rag.pdf",
		Authors:  []string{"Patrick Lewis", "Ethan Perez", "Aleksandra Piktus"},
		Year:     2020,
		Pages:    19,
		Abstract: "Combining parametric and non-parametric memory for language generation.",
	},
	{
		ID:       "p4",
		FolderID: "f2",
		Title:    "Dense Passage Retrieval for Open-Domain Question Answering",
		Filename: "dpr.pdf",
		Authors:  []string{"Vladimir Karpukhin", "Barlas Oguz", "Sewon Min"},
		Year:     2020,
		Pages:    13,
		Abstract: "Dense representations alone can outperform sparse retrieval for open-domain QA.",
	},
	{
		ID:       "p5",
		FolderID: "f3",
		Title:    "LayoutLMv3: Pre-training for Document AI with Unified Text and Image Masking",
		Filename: "layoutlmv3.pdf",
		Authors:  []string{"Yupan Huang", "Tengchao Lv", "Lei Cui"},
		Year:     2022,
		Pages:    10,
		Abstract: "Unified text and image masking for multimodal document pre-training.",
	},
}

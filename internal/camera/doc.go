// Package camera はカメラデバイスの検出と選択を担う
//
// # 責務
// - カメラデバイスの検出（Linux V4L2 / テスト用モック）
// - デバイスの能力（カラー映像・深度）の判定
// - 優先順位リストに従ったデバイスの選択
//
// # 仕様
// - 選択は「メディア種別・位置で絞り込み → 優先順位の先頭から一致検索」
// - 一致するデバイスがない場合は ErrNoDeviceFound（リトライしない）
// - Linux Discovery は v4l2-ctl の出力からフォーマットを判定する
//
// # 前提要件
//   - v4l-utils: フォーマット一覧とカメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera

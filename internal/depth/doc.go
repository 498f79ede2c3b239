// Package depth は深度フレームの表現と正規化を担う
//
// # 責務
// - 深度フレーム（DepthFrame）とピクセルフォーマットの定義
// - 任意の深度表現から32bit浮動小数点深度（Depth32）への変換
// - 診断用サンプル座標の深度値の取り出し
// - フレーム配信レーン（セッション制御とは独立したワーカー）
//
// # 仕様
//   - バイト列はリトルエンディアン
//   - 16bitフォーマットはIEEE半精度浮動小数点
//   - Disparity はメートルの逆数 (1/m)、Depth はメートル
//   - フレームは配信コールバックの間だけ有効で、処理後は Release される
//   - バッファの読み取りは必ずロック/アンロックで囲む
package depth
